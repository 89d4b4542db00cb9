// Command udtcat pipes stdin/stdout through a single udt.Connection, for
// manual interop testing of the transport: one side listens, the other
// dials, and bytes typed on either side arrive on the other's stdout.
package main

import (
	"bufio"
	"flag"
	"net"
	"os"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/kunalgosar/hifi/udt"
)

func main() {
	configPath := flag.String("config", "", "path to a YAML config file (default: built-in defaults)")
	listen := flag.Bool("listen", false, "wait for the peer's first datagram instead of dialing")
	dial := flag.String("dial", "", "peer address to send to, e.g. 127.0.0.1:9000")
	flag.Parse()

	cfg, err := loadConfig(*configPath)
	if err != nil {
		logrus.Fatalf("config: %v", err)
	}

	log, err := udt.NewLogger(cfg)
	if err != nil {
		logrus.Fatalf("logger: %v", err)
	}

	policy, err := cfg.Policy()
	if err != nil {
		logrus.Fatalf("policy: %v", err)
	}

	conn, err := net.ListenPacket("udp", cfg.Listen)
	if err != nil {
		logrus.Fatalf("listen %s: %v", cfg.Listen, err)
	}
	defer conn.Close()

	out := bufio.NewWriter(os.Stdout)
	defer out.Flush()

	// peer comes from -dial, or in listen mode from the first inbound datagram.
	var peerMu sync.Mutex
	var peer net.Addr

	sock := udt.NewSocket(conn, policy, cfg.MaxFlowWindow, log, func(src net.Addr, data []byte) {
		peerMu.Lock()
		if peer == nil {
			peer = src
		}
		peerMu.Unlock()
		out.Write(data)
		out.WriteByte('\n')
		out.Flush()
	})
	defer sock.Close()

	if *dial != "" {
		peerMu.Lock()
		peer, err = net.ResolveUDPAddr("udp", *dial)
		peerMu.Unlock()
		if err != nil {
			logrus.Fatalf("resolve %s: %v", *dial, err)
		}
	} else if !*listen {
		logrus.Fatal("one of -dial or -listen is required")
	}

	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		peerMu.Lock()
		dest := peer
		peerMu.Unlock()
		if dest == nil {
			logrus.Warn("no peer known yet, waiting for an inbound datagram before sending")
			continue
		}
		if err := sock.Send(dest, scanner.Bytes()); err != nil {
			logrus.Errorf("send: %v", err)
		}
	}
}

func loadConfig(path string) (*udt.Config, error) {
	if path == "" {
		return udt.DefaultConfig()
	}
	return udt.LoadConfig(path)
}
