package master

import "github.com/openfieldbus/cciefb/pkg/frame"

func actionDeviceInit(g *Group, d *Device, now uint32) DeviceEvent {
	d.Enabled = !d.cfg.Reserved
	d.TransmissionBit = false
	d.Stats = DeviceStatistics{}
	d.LastFrame = FrameValues{}
	d.TimeoutCount = 0
	return DeviceEventNone
}

// actionSetDataIP places the device's IP (or 0.0.0.0) and cyclic output
// data into the group's outgoing request frame, and fires connect/disconnect
// callbacks on a transmission-bit edge. new_state is read from d.state,
// which fireDevice already advanced before calling this action.
func actionSetDataIP(g *Group, d *Device, now uint32) DeviceEvent {
	if d.state == DeviceStateCyclicSending {
		if !d.TransmissionBit {
			d.Stats.NumberOfConnects++
			if g.cb.Connect != nil {
				g.cb.Connect(g.cfg.GroupNo, d.StationNo, d.cfg.SlaveID)
			}
		}
		d.TransmissionBit = true
	} else {
		if d.TransmissionBit {
			d.Stats.NumberOfDisconnects++
			if g.cb.Disconnect != nil {
				g.cb.Disconnect(g.cfg.GroupNo, d.StationNo, d.cfg.SlaveID)
			}
		}
		d.TransmissionBit = false
	}

	combined := d.TransmissionBit || d.ForceTransmissionBit
	g.req.SetCyclicTransmissionState(frame.SetTransmissionBit(g.req.CyclicTransmissionState(), d.StationNo, combined))
	g.updateSlaveID(d, d.state != DeviceStateCyclicSuspend)
	g.updateRequestCyclicData(d, combined)

	if d.Enabled {
		d.Stats.NumberOfSentFrames++
	}
	return DeviceEventNone
}

func actionEvaluateTimeoutCounter(g *Group, d *Device, now uint32) DeviceEvent {
	d.TimeoutCount++
	if d.TimeoutCount >= g.cfg.ParallelOffTimeoutCount {
		d.Stats.NumberOfTimeouts++
		return DeviceEventTimeoutcounterFull
	}
	return DeviceEventTimeoutcounterNotFull
}

func actionResetTimeoutCount(g *Group, d *Device, now uint32) DeviceEvent {
	d.TimeoutCount = 0
	return DeviceEventNone
}
