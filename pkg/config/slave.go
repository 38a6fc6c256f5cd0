package config

import (
	"fmt"
	"strconv"

	"gopkg.in/ini.v1"

	"github.com/openfieldbus/cciefb/pkg/slave"
)

// LoadSlaveConfig parses an INI file describing a single slave's identity.
//
// Expected layout:
//
//	[slave]
//	MyIP = 192.168.1.100
//	NumOccupiedStations = 1
//	VendorCode = 0x1234
//	ModelCode = 0xABCDEF01
//	EquipmentVer = 2
//	RateLimitWindowMs = 1000
func LoadSlaveConfig(path string) (slave.Config, error) {
	var cfg slave.Config

	f, err := ini.Load(path)
	if err != nil {
		return cfg, err
	}

	section := f.Section("slave")
	if section == nil {
		return cfg, fmt.Errorf("config: missing [slave] section")
	}

	myIP, err := parseIPKey(section, "MyIP")
	if err != nil {
		return cfg, err
	}
	occupied, _ := section.Key("NumOccupiedStations").Uint()
	if occupied == 0 {
		occupied = 1
	}
	vendorCode, _ := strconv.ParseUint(section.Key("VendorCode").String(), 0, 16)
	modelCode, _ := strconv.ParseUint(section.Key("ModelCode").String(), 0, 32)
	equipmentVer, _ := strconv.ParseUint(section.Key("EquipmentVer").String(), 0, 16)
	rateLimitMs, err := section.Key("RateLimitWindowMs").Uint()
	if err != nil || rateLimitMs == 0 {
		rateLimitMs = 1000
	}

	cfg = slave.Config{
		MyIP:                myIP,
		NumOccupiedStations: uint16(occupied),
		VendorCode:          uint16(vendorCode),
		ModelCode:           uint32(modelCode),
		EquipmentVer:        uint16(equipmentVer),
		RateLimitWindowUs:   uint32(rateLimitMs) * 1000,
	}
	return cfg, nil
}
