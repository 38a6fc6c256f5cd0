package main

import (
	"flag"
	"net"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/openfieldbus/cciefb/pkg/config"
	"github.com/openfieldbus/cciefb/pkg/platform"
	"github.com/openfieldbus/cciefb/pkg/platform/udpsock"
	"github.com/openfieldbus/cciefb/pkg/slave"
	"github.com/openfieldbus/cciefb/pkg/slmp"
)

const cciefbPort = 61450

func main() {
	log.SetLevel(log.InfoLevel)

	configPath := flag.String("c", "", "slave INI config file")
	iface := flag.String("i", "", "network interface to bind (empty = all)")
	flag.Parse()

	if *configPath == "" {
		log.Fatal("missing -c <config.ini>")
	}

	cfg, err := config.LoadSlaveConfig(*configPath)
	if err != nil {
		log.Fatalf("loading config: %v", err)
	}

	host := udpsock.New("")
	sock, err := host.OpenSocket(*iface, cciefbPort, false)
	if err != nil {
		log.Fatalf("opening socket: %v", err)
	}
	defer sock.Close()

	slmpSock, err := host.OpenSocket(*iface, slmp.Port, true)
	if err != nil {
		log.Fatalf("opening slmp socket: %v", err)
	}
	defer slmpSock.Close()

	mac, err := host.LocalMAC(*iface)
	if err != nil {
		log.Fatalf("reading local MAC: %v", err)
	}
	responder := slmp.NewResponder(slmp.Identity{
		MAC:          macFrom(mac),
		VendorCode:   cfg.VendorCode,
		ModelCode:    cfg.ModelCode,
		EquipmentVer: cfg.EquipmentVer,
	})

	s, err := slave.New(cfg, log.StandardLogger(), callbacks())
	if err != nil {
		log.Fatalf("building slave: %v", err)
	}

	run(s, sock, slmpSock, responder, host, *iface)
}

// netmaskFor returns the IPv4 netmask bound to iface, or a default
// class-C mask if it cannot be determined.
func netmaskFor(iface string) uint32 {
	ifaces, err := net.Interfaces()
	if err != nil {
		return 0xFFFFFF00
	}
	for _, ifc := range ifaces {
		if iface != "" && ifc.Name != iface {
			continue
		}
		addrs, err := ifc.Addrs()
		if err != nil {
			continue
		}
		for _, a := range addrs {
			if ipnet, ok := a.(*net.IPNet); ok && ipnet.IP.To4() != nil {
				m := ipnet.Mask
				return uint32(m[0])<<24 | uint32(m[1])<<16 | uint32(m[2])<<8 | uint32(m[3])
			}
		}
	}
	return 0xFFFFFF00
}

func macFrom(hw net.HardwareAddr) slmp.MAC {
	var m slmp.MAC
	copy(m[:], hw)
	return m
}

func callbacks() slave.Callbacks {
	return slave.Callbacks{
		StateChange: func(prev, next slave.State) {
			log.Infof("state %v -> %v", prev, next)
		},
		Connect: func(masterID uint32, groupNo uint8, stationNo uint16) {
			log.WithFields(log.Fields{"master": ipString(masterID), "group": groupNo}).Info("acquired by master")
		},
		Disconnect: func() {
			log.Warn("master link lost")
		},
		Error: func(kind slave.ErrorKind, masterID uint32, extra uint32) {
			log.WithField("master", ipString(masterID)).Errorf("error %v (extra=%d)", kind, extra)
		},
	}
}

// run is the slave's single cooperative loop: poll the cyclic socket, hand
// any datagram to HandleRequest, send back whatever response it returns,
// poll the SLMP socket for node-search/set-IP requests, and call Periodic
// every tick. As in the master binary, the engine itself never spawns
// goroutines.
func run(s *slave.Slave, sock, slmpSock platform.Socket, responder *slmp.Responder, host platform.Platform, iface string) {
	buf := make([]byte, 2048)
	slmpBuf := make([]byte, 256)
	s.Start(host.NowMicros())

	ticker := time.NewTicker(time.Millisecond)
	defer ticker.Stop()

	for range ticker.C {
		now := host.NowMicros()

		if err := platform.DrainDatagrams(sock, buf, func(payload []byte, from net.IP) {
			resp := s.HandleRequest(now, payload, ipToUint32(from))
			if resp != nil {
				if err := sock.SendTo(resp, from, cciefbPort); err != nil {
					log.Errorf("send: %v", err)
				}
			}
		}); err != nil {
			log.Errorf("recv: %v", err)
		}

		handleSLMP(slmpSock, slmpBuf, responder, s, now, iface, host)

		s.Periodic(now)
	}
}

// handleSLMP answers every pending node-search or set-IP request this tick.
// Node-search requests get an immediate identity reply; a set-IP request
// addressed to our own MAC is applied locally (NotifyIPChanged) before the
// acknowledgement is sent, matching cl_slmp_udp.c's apply-then-ack order.
func handleSLMP(sock platform.Socket, buf []byte, responder *slmp.Responder, s *slave.Slave, now uint32, iface string, host platform.Platform) {
	myIP, err := host.LocalIPv4(iface)
	if err != nil {
		return
	}
	netmask := netmaskFor(iface)

	if err := platform.DrainDatagrams(sock, buf, func(payload []byte, from net.IP) {
		if resp, err := responder.HandleNodeSearchRequest(payload, ipToUint32(myIP), netmask, 0); err == nil {
			if err := sock.SendTo(resp, from, slmp.Port); err != nil {
				log.Errorf("slmp send: %v", err)
			}
			return
		}

		addressed, apply, resp, err := responder.HandleSetIPRequest(payload)
		if err != nil || !addressed {
			return
		}
		s.NotifyIPChanged(now, apply.NewIP)
		if err := sock.SendTo(resp, from, slmp.Port); err != nil {
			log.Errorf("slmp send: %v", err)
		}
	}); err != nil {
		log.Errorf("slmp recv: %v", err)
	}
}

func ipToUint32(ip net.IP) uint32 {
	v4 := ip.To4()
	if v4 == nil {
		return 0
	}
	return uint32(v4[0])<<24 | uint32(v4[1])<<16 | uint32(v4[2])<<8 | uint32(v4[3])
}

func ipString(ip uint32) string {
	return net.IPv4(byte(ip>>24), byte(ip>>16), byte(ip>>8), byte(ip)).String()
}
