package master

import "github.com/openfieldbus/cciefb/pkg/frame"

// actionGroupInit resets a group to its startup condition and brings every
// device up to Listen.
func actionGroupInit(g *Group, now uint32) GroupEvent {
	g.responseWaitTimer.Stop()
	g.constantLinkscanTimer.Stop()
	g.frameSeqNo = 0
	g.timestampLinkScanStart = 0
	g.req.SetCyclicTransmissionState(0)

	for _, d := range g.devices {
		d.state = DeviceStateMasterDown
	}
	g.fireDeviceAll(now, DeviceEventGroupStartup)
	return GroupEventNone
}

// actionGroupNewConfig starts the master-wide arbitration timer the first
// time any group receives a fresh configuration. The timer itself lives on
// Master, shared across groups, so newConfig only requests that it start.
func actionGroupNewConfig(g *Group, now uint32) GroupEvent {
	if g.startArb != nil {
		g.startArb(now)
	}
	return GroupEventNone
}

func actionOnArbitrationFailed(g *Group, now uint32) GroupEvent {
	if g.triggerErr != nil {
		g.triggerErr(now, g.cfg.GroupNo, ErrorArbitrationFailed, g.latestConflictingMasterIP)
	}
	return GroupEventNone
}

// actionOnArbitrationDone cascades straight into the first link scan.
func actionOnArbitrationDone(g *Group, now uint32) GroupEvent {
	return GroupEventLinkscanStart
}

// actionOnLinkscanStart kicks off one scan cycle: it tells every device
// whether it is in or out of this scan, stamps the scan start time, sends
// the request frame, and arms the response-wait timer (plus the constant
// link-scan-time timer, if configured).
func actionOnLinkscanStart(g *Group, now uint32) GroupEvent {
	g.timestampLinkScanStart = now

	for _, d := range g.devices {
		if d.Enabled {
			fireDevice(g, d, now, DeviceEventScanStartDeviceStart)
		} else {
			fireDevice(g, d, now, DeviceEventScanStartDeviceStop)
		}
	}

	g.req.UpdateRequestHeaders(g.frameSeqNo, 0, 0, g.req.CyclicTransmissionState())
	g.pendingSend = g.req.Bytes()

	g.responseWaitTimer.Start(uint32(frame.TotalTimeoutUs(g.cfg.TimeoutMs, g.cfg.ParallelOffTimeoutCount)), now)
	if g.cfg.UseConstantLinkScanTime {
		g.constantLinkscanTimer.StartIfNotRunning(uint32(g.cfg.TimeoutMs)*1000, now)
	}
	return GroupEventNone
}

// actionOnLinkscanTimeout fires when the response-wait timer expires before
// every device has answered. It forces the remaining devices through a
// timeout evaluation and starts the next scan right away, or, with a
// constant link-scan time, leaves it to Periodic once that timer expires.
func actionOnLinkscanTimeout(g *Group, now uint32) GroupEvent {
	g.fireDeviceAll(now, DeviceEventGroupTimeout)
	if g.cb.LinkScan != nil {
		g.cb.LinkScan(g.cfg.GroupNo, false, now-g.timestampLinkScanStart)
	}
	g.frameSeqNo = frame.BumpSequenceNo(g.frameSeqNo)

	if g.cfg.UseConstantLinkScanTime {
		return GroupEventNone
	}
	return GroupEventLinkscanStart
}

// actionOnLinkscanComplete fires once every expected device has responded
// for this scan, ahead of the timeout.
func actionOnLinkscanComplete(g *Group, now uint32) GroupEvent {
	g.responseWaitTimer.Stop()
	g.fireDeviceAll(now, DeviceEventGroupAllResponded)
	if g.cb.LinkScan != nil {
		g.cb.LinkScan(g.cfg.GroupNo, true, now-g.timestampLinkScanStart)
	}
	g.frameSeqNo = frame.BumpSequenceNo(g.frameSeqNo)

	if g.cfg.UseConstantLinkScanTime {
		return GroupEventNone
	}
	return GroupEventLinkscanStart
}

func actionGroupOnEntryListen(g *Group, now uint32) GroupEvent {
	g.fireDeviceAll(now, DeviceEventGroupStandby)
	if g.cb.MasterState != nil {
		g.cb.MasterState(g.cfg.GroupNo, MasterStateStandby)
	}
	return GroupEventNone
}

func actionGroupOnEntryArbitration(g *Group, now uint32) GroupEvent {
	if g.cb.MasterState != nil {
		g.cb.MasterState(g.cfg.GroupNo, MasterStateArbitration)
	}
	return GroupEventNone
}

func actionGroupOnEntryScanComplete(g *Group, now uint32) GroupEvent {
	if g.cb.MasterState != nil {
		g.cb.MasterState(g.cfg.GroupNo, MasterStateRunning)
	}
	return GroupEventNone
}
