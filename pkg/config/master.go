// Package config loads master and slave topology configuration from INI
// files, in the style of the teacher's EDS-as-INI object dictionary loader.
package config

import (
	"fmt"
	"net"
	"regexp"
	"strconv"

	"gopkg.in/ini.v1"

	"github.com/openfieldbus/cciefb/pkg/master"
)

var groupSectionRe = regexp.MustCompile(`^group(\d+)$`)
var deviceSectionRe = regexp.MustCompile(`^group(\d+)\.device(\d+)$`)

// LoadMasterConfig parses an INI file describing a master's arbitration
// window and every scan group/device it owns.
//
// Expected layout:
//
//	[master]
//	ArbitrationTimeoutMs = 3000
//
//	[group1]
//	MasterID = 192.168.1.1
//	BroadcastIP = 192.168.1.255
//	ProtocolVersion = 2
//	TimeoutMs = 500
//	ParallelOffTimeoutCount = 3
//	UseConstantLinkScanTime = false
//
//	[group1.device1]
//	SlaveID = 192.168.1.100
//	NumOccupiedStations = 1
func LoadMasterConfig(path string) (master.Config, error) {
	var cfg master.Config

	f, err := ini.Load(path)
	if err != nil {
		return cfg, err
	}

	masterSection := f.Section("master")
	arbMs, err := masterSection.Key("ArbitrationTimeoutMs").Uint()
	if err != nil {
		arbMs = 3000
	}
	cfg.ArbitrationTimeoutUs = uint32(arbMs) * 1000

	groups := map[uint8]*master.GroupConfig{}
	var order []uint8

	for _, section := range f.Sections() {
		m := groupSectionRe.FindStringSubmatch(section.Name())
		if m == nil {
			continue
		}
		groupNo, err := strconv.ParseUint(m[1], 10, 8)
		if err != nil {
			return cfg, fmt.Errorf("config: bad group section %q: %w", section.Name(), err)
		}

		masterIP, err := parseIPKey(section, "MasterID")
		if err != nil {
			return cfg, err
		}
		broadcastIP, err := parseIPKey(section, "BroadcastIP")
		if err != nil {
			return cfg, err
		}
		protoVer, _ := section.Key("ProtocolVersion").Uint()
		timeoutMs, _ := section.Key("TimeoutMs").Uint()
		parallelOff, _ := section.Key("ParallelOffTimeoutCount").Uint()
		constantScan, _ := section.Key("UseConstantLinkScanTime").Bool()
		paramNo, _ := section.Key("ParameterNo").Uint()

		gc := &master.GroupConfig{
			GroupNo:                 uint8(groupNo),
			MasterID:                masterIP,
			BroadcastIP:             broadcastIP,
			ProtocolVersion:         uint16(protoVer),
			ParameterNo:             uint16(paramNo),
			TimeoutMs:               uint16(timeoutMs),
			ParallelOffTimeoutCount: uint16(parallelOff),
			UseConstantLinkScanTime: constantScan,
		}
		groups[uint8(groupNo)] = gc
		order = append(order, uint8(groupNo))
	}

	for _, section := range f.Sections() {
		m := deviceSectionRe.FindStringSubmatch(section.Name())
		if m == nil {
			continue
		}
		groupNo, err := strconv.ParseUint(m[1], 10, 8)
		if err != nil {
			return cfg, err
		}
		gc, ok := groups[uint8(groupNo)]
		if !ok {
			return cfg, fmt.Errorf("config: device section %q references undefined group %d", section.Name(), groupNo)
		}

		slaveIP, err := parseIPKey(section, "SlaveID")
		if err != nil {
			return cfg, err
		}
		occupied, _ := section.Key("NumOccupiedStations").Uint()
		if occupied == 0 {
			occupied = 1
		}
		reserved, _ := section.Key("Reserved").Bool()

		gc.Devices = append(gc.Devices, master.DeviceConfig{
			SlaveID:             slaveIP,
			NumOccupiedStations: uint16(occupied),
			Reserved:            reserved,
		})
	}

	for _, no := range order {
		cfg.Groups = append(cfg.Groups, *groups[no])
	}
	return cfg, nil
}

func parseIPKey(section *ini.Section, key string) (uint32, error) {
	s := section.Key(key).String()
	ip := net.ParseIP(s).To4()
	if ip == nil {
		return 0, fmt.Errorf("config: %s.%s: invalid IPv4 address %q", section.Name(), key, s)
	}
	return uint32(ip[0])<<24 | uint32(ip[1])<<16 | uint32(ip[2])<<8 | uint32(ip[3]), nil
}
