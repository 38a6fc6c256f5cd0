package main

import (
	"flag"
	"net"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/openfieldbus/cciefb/pkg/config"
	"github.com/openfieldbus/cciefb/pkg/master"
	"github.com/openfieldbus/cciefb/pkg/platform"
	"github.com/openfieldbus/cciefb/pkg/platform/udpsock"
	"github.com/openfieldbus/cciefb/pkg/slmp"
)

const cciefbPort = 61450

func main() {
	log.SetLevel(log.InfoLevel)

	configPath := flag.String("c", "", "master topology INI file")
	iface := flag.String("i", "", "network interface to bind (empty = all)")
	stateDir := flag.String("state", "/var/lib/cciefb-master", "directory for persisted counters")
	search := flag.Bool("search", false, "run one SLMP node-search at startup and log discovered slaves")
	flag.Parse()

	if *configPath == "" {
		log.Fatal("missing -c <config.ini>")
	}

	cfg, err := config.LoadMasterConfig(*configPath)
	if err != nil {
		log.Fatalf("loading config: %v", err)
	}

	host := udpsock.New(*stateDir)
	sock, err := host.OpenSocket(*iface, cciefbPort, true)
	if err != nil {
		log.Fatalf("opening socket: %v", err)
	}
	defer sock.Close()

	slmpSock, err := host.OpenSocket(*iface, slmp.Port, true)
	if err != nil {
		log.Fatalf("opening slmp socket: %v", err)
	}
	defer slmpSock.Close()

	send := func(groupNo uint8, broadcastIP uint32, payload []byte) {
		ip := ipFromUint32(broadcastIP)
		if err := sock.SendTo(payload, ip, cciefbPort); err != nil {
			log.WithField("group", groupNo).Errorf("send failed: %v", err)
		}
	}

	cfg.ReadFile = host.ReadFile
	cfg.WriteFile = host.WriteFile

	m, err := master.New(cfg, log.StandardLogger(), callbacks(), send)
	if err != nil {
		log.Fatalf("building master: %v", err)
	}

	searcher := slmp.NewNodeSearcher(32, slmp.DefaultCollectionWindowUs, func(db *slmp.Database) {
		for _, e := range db.Entries() {
			log.WithFields(log.Fields{"slave": ipFromUint32(e.SlaveIP), "vendor": e.VendorCode, "model": e.ModelCode}).Info("node-search reply")
		}
		if db.Overflowed() {
			log.Warnf("node-search saw %d replies, database holds %d", db.Seen(), len(db.Entries()))
		}
	})
	setIP := slmp.NewSetIPRequester(slmp.DefaultSetIPTimeoutUs, func(r slmp.SetIPResult) {
		log.WithField("status", r.Status).Info("set-ip result")
	})

	run(m, sock, slmpSock, searcher, setIP, host, *iface, *search)
}

func callbacks() master.Callbacks {
	return master.Callbacks{
		Connect: func(groupNo uint8, stationNo uint16, slaveID uint32) {
			log.WithFields(log.Fields{"group": groupNo, "station": stationNo}).Info("slave connected")
		},
		Disconnect: func(groupNo uint8, stationNo uint16, slaveID uint32) {
			log.WithFields(log.Fields{"group": groupNo, "station": stationNo}).Warn("slave disconnected")
		},
		LinkScan: func(groupNo uint8, allResponded bool, scanTimeUs uint32) {
			log.WithFields(log.Fields{"group": groupNo, "ok": allResponded, "us": scanTimeUs}).Debug("link scan complete")
		},
		MasterState: func(groupNo uint8, state master.MasterState) {
			log.WithField("group", groupNo).Infof("group state -> %v", state)
		},
		Error: func(groupNo uint8, kind master.ErrorKind, extra uint32) {
			log.WithField("group", groupNo).Errorf("error %v (extra=%d)", kind, extra)
		},
	}
}

// run drives the master from a single cooperative loop: poll the cyclic
// socket (non-blocking), feed any datagram to HandleResponse, poll the SLMP
// socket for node-search/set-IP replies, then call Periodic. There are no
// goroutines inside the engine; this loop is the only place time advances.
func run(m *master.Master, sock, slmpSock platform.Socket, searcher *slmp.NodeSearcher, setIP *slmp.SetIPRequester, host platform.Platform, iface string, search bool) {
	buf := make([]byte, 2048)
	slmpBuf := make([]byte, 256)
	start := host.NowMicros()
	m.Start(start)

	myMAC, macErr := host.LocalMAC(iface)
	myIP, ipErr := host.LocalIPv4(iface)
	if search && macErr == nil && ipErr == nil {
		if req := searcher.Begin(start, macFrom(myMAC), ipToUint32(myIP)); req != nil {
			if err := slmpSock.SendTo(req, net.IPv4bcast, slmp.Port); err != nil {
				log.Errorf("node-search send: %v", err)
			}
		}
	}

	ticker := time.NewTicker(time.Millisecond)
	defer ticker.Stop()

	for range ticker.C {
		now := host.NowMicros()

		if err := platform.DrainDatagrams(sock, buf, func(payload []byte, from net.IP) {
			m.HandleResponse(now, payload, ipToUint32(from))
		}); err != nil {
			log.Errorf("recv: %v", err)
		}

		if ipErr == nil {
			myIPu := ipToUint32(myIP)
			if err := platform.DrainDatagrams(slmpSock, slmpBuf, func(payload []byte, from net.IP) {
				fromIP := ipToUint32(from)
				if err := searcher.HandleResponse(payload, fromIP, myIPu); err != nil {
					log.Debugf("node-search response: %v", err)
				}
				if err := setIP.HandleResponse(payload, fromIP, myIPu); err != nil {
					log.Debugf("set-ip response: %v", err)
				}
			}); err != nil {
				log.Errorf("slmp recv: %v", err)
			}
			searcher.Periodic(now)
			setIP.Periodic(now)
		}

		m.Periodic(now)
	}
}

func macFrom(hw net.HardwareAddr) slmp.MAC {
	var m slmp.MAC
	copy(m[:], hw)
	return m
}

func ipFromUint32(ip uint32) net.IP {
	return net.IPv4(byte(ip>>24), byte(ip>>16), byte(ip>>8), byte(ip))
}

func ipToUint32(ip net.IP) uint32 {
	v4 := ip.To4()
	if v4 == nil {
		return 0
	}
	return uint32(v4[0])<<24 | uint32(v4[1])<<16 | uint32(v4[2])<<8 | uint32(v4[3])
}
