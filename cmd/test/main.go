// Command test runs a scripted mock of the feed service so the relay can be
// exercised end to end without vendor connectivity: a level 1 stream port, an
// admin port with per-second STATS heartbeats, and a lookup port with canned
// results. With -config it also boots the full relay against the mock.
package main

import (
	"bufio"
	"flag"
	"fmt"
	"math/rand"
	"net"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"feed-relay/src/config"
	"feed-relay/src/logger"
	"feed-relay/src/models"
	"feed-relay/src/relay"
)

func main() {
	l1Port := flag.Int("l1-port", 5009, "level 1 stream port")
	adminPort := flag.Int("admin-port", 9300, "admin port")
	lookupPort := flag.Int("lookup-port", 9100, "lookup port")
	tickMs := flag.Int("tick-ms", 250, "interval between generated update rows")
	configPath := flag.String("config", "", "also start the relay with this config (endpoints should point at the mock ports)")
	flag.Parse()

	log := logger.NewLogger(&models.MLogConfig{Level: "debug", Console: true}, "feedsim")

	sim := &feedSim{logger: log, tick: time.Duration(*tickMs) * time.Millisecond}

	for port, serve := range map[int]func(net.Conn){
		*l1Port:     sim.serveL1,
		*adminPort:  sim.serveAdmin,
		*lookupPort: sim.serveLookup,
	} {
		listener, err := net.Listen("tcp", fmt.Sprintf("127.0.0.1:%d", port))
		if err != nil {
			log.Critical("feedsim : failed to listen on %d: %v", port, err)
			os.Exit(1)
		}
		defer listener.Close()
		go sim.acceptLoop(listener, serve)
	}

	log.Info("feedsim : L1 :%d, admin :%d, lookup :%d. Press Ctrl+C to stop.",
		*l1Port, *adminPort, *lookupPort)

	if *configPath != "" {
		cfg, err := config.NewConfig(*configPath)
		if err != nil {
			log.Critical("feedsim : failed to load config: %v", err)
			os.Exit(1)
		}
		relayService, err := relay.NewRelay(cfg, logger.NewLogger(&cfg.Log, cfg.Name))
		if err != nil {
			log.Critical("feedsim : failed to create relay: %v", err)
			os.Exit(1)
		}
		if err := relayService.Start(); err != nil {
			log.Critical("feedsim : failed to start relay: %v", err)
			os.Exit(1)
		}
		defer relayService.Stop()
		log.Info("feedsim : relay running against the mock feed")
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan
}

// -----------------------------------------------------------------------------

type feedSim struct {
	logger *logger.Logger
	tick   time.Duration
}

func (s *feedSim) acceptLoop(listener net.Listener, serve func(net.Conn)) {
	for {
		conn, err := listener.Accept()
		if err != nil {
			return
		}
		s.logger.Info("feedsim : client connected on %s", listener.Addr())
		go serve(conn)
	}
}

// -----------------------------------------------------------------------------

// serveL1 plays the level 1 stream port: startup system rows on connect,
// command acknowledgements, and a stream of Q rows for every watched symbol.
func (s *feedSim) serveL1(conn net.Conn) {
	defer conn.Close()

	var mu sync.Mutex
	watched := map[string]bool{}

	send := func(line string) {
		mu.Lock()
		defer mu.Unlock()
		conn.Write([]byte(line + "\r\n"))
	}

	for _, row := range []string{"S,KEYOK", "S,CUST,real_time,...", "S,IP,127.0.0.1", "S,SERVER CONNECTED", "S,KEY"} {
		send(row)
	}

	done := make(chan struct{})
	defer close(done)

	// Update generator: one Q row per watched symbol per tick, plus the
	// per-second T heartbeat the real port emits.
	go func() {
		ticker := time.NewTicker(s.tick)
		defer ticker.Stop()
		heartbeat := time.NewTicker(1 * time.Second)
		defer heartbeat.Stop()

		for {
			select {
			case <-done:
				return
			case now := <-heartbeat.C:
				send("T," + now.Format("20060102 15:04:05"))
			case now := <-ticker.C:
				mu.Lock()
				symbols := make([]string, 0, len(watched))
				for symbol, on := range watched {
					if on {
						symbols = append(symbols, symbol)
					}
				}
				mu.Unlock()
				for _, symbol := range symbols {
					send(quoteRow(symbol, now))
				}
			}
		}
	}()

	scanner := bufio.NewScanner(conn)
	for scanner.Scan() {
		command := strings.TrimRight(scanner.Text(), "\r")
		if command == "" {
			continue
		}
		s.logger.Debug("feedsim : L1 command: %s", command)

		switch {
		case strings.HasPrefix(command, "S,SET PROTOCOL,"):
			send("S,CURRENT PROTOCOL," + strings.TrimPrefix(command, "S,SET PROTOCOL,"))
		case strings.HasPrefix(command, "S,SELECT UPDATE FIELDS,"):
			send("S,CURRENT UPDATE FIELDNAMES," + strings.TrimPrefix(command, "S,SELECT UPDATE FIELDS,"))
		case strings.HasPrefix(command, "w") || strings.HasPrefix(command, "t"):
			symbol := command[1:]
			mu.Lock()
			watched[symbol] = true
			mu.Unlock()
			send(quoteRow(symbol, time.Now())) // immediate summary-style row
		case strings.HasPrefix(command, "r"):
			mu.Lock()
			watched[command[1:]] = false
			mu.Unlock()
		case strings.HasPrefix(command, "f"):
			send(quoteRow(command[1:], time.Now()))
		default:
			send("E,Unrecognized command " + command)
		}
	}
}

// -----------------------------------------------------------------------------

// serveAdmin plays the admin port: once client stats are on, one S,STATS row
// per second with Status "Connected".
func (s *feedSim) serveAdmin(conn net.Conn) {
	defer conn.Close()

	statsOn := make(chan struct{})
	done := make(chan struct{})
	defer close(done)

	go func() {
		select {
		case <-done:
			return
		case <-statsOn:
		}
		start := time.Now()
		ticker := time.NewTicker(1 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case now := <-ticker.C:
				row := fmt.Sprintf("S,STATS,66.112.148.224,60002,500,1,1,0,0,0,%s,%s,Connected,6.2.0.25,212, 465,0.09,0.09,0.05,,,\r\n",
					start.Format("Jan 02 3:04PM"), now.Format("Jan 02 3:04PM"))
				conn.Write([]byte(row))
			}
		}
	}()

	scanner := bufio.NewScanner(conn)
	enabled := false
	for scanner.Scan() {
		command := strings.TrimRight(scanner.Text(), "\r")
		s.logger.Debug("feedsim : admin command: %s", command)
		switch {
		case strings.HasPrefix(command, "S,SET PROTOCOL,"):
			conn.Write([]byte("S,CURRENT PROTOCOL," + strings.TrimPrefix(command, "S,SET PROTOCOL,") + "\r\n"))
		case command == "S,CLIENTSTATS ON":
			if !enabled {
				enabled = true
				close(statsOn)
			}
		case command == "S,CONNECT":
			conn.Write([]byte("S,SERVER CONNECTED\r\n"))
		}
	}
}

// -----------------------------------------------------------------------------

// serveLookup plays the lookup port with canned result sets. Responses echo
// the request id the client appended to the command.
func (s *feedSim) serveLookup(conn net.Conn) {
	defer conn.Close()

	scanner := bufio.NewScanner(conn)
	for scanner.Scan() {
		command := strings.TrimRight(scanner.Text(), "\r")
		if command == "" || strings.HasPrefix(command, "S,SET PROTOCOL,") {
			continue
		}
		s.logger.Debug("feedsim : lookup command: %s", command)

		fields := strings.Split(command, ",")
		var requestID string
		switch fields[0] {
		case "HTT", "HIT":
			// History commands carry the id in the RequestID column, one
			// before DatapointsPerSend.
			requestID = fields[len(fields)-2]
		default:
			requestID = fields[len(fields)-1]
		}
		prefix := requestID + ","

		var rows []string
		switch fields[0] {
		case "SST":
			rows = []string{"LS,1,EQUITY,Equity,", "LS,8,FUTURE,Future,"}
		case "SLM":
			rows = []string{"LS,1,NYSE,New York Stock Exchange,7,NYSE,", "LS,34,CME,Chicago Mercantile Exchange,3,CME,"}
		case "SBF":
			rows = []string{"LS,@ESH26,34,8,E-MINI S&P 500 MARCH 2026,", "LS,@ESM26,34,8,E-MINI S&P 500 JUNE 2026,"}
		case "HTT":
			rows = []string{"LH,2026-08-27 09:30:00.000123,6512.25,2,1500,6512.00,6512.25,3001,"}
		case "HIT":
			rows = []string{"LH,2026-08-27 09:31:00,6513.00,6511.75,6512.25,6512.50,1750,250,41,"}
		default:
			rows = []string{"E,Unrecognized command,"}
		}

		for _, row := range rows {
			conn.Write([]byte(prefix + row + "\r\n"))
		}
		conn.Write([]byte(prefix + "!ENDMSG!,\r\n"))
	}
}

// -----------------------------------------------------------------------------

// quoteRow builds a pinned-field Q row with a random walk around a base price.
func quoteRow(symbol string, now time.Time) string {
	price := 100.0 + rand.Float64()*5.0
	size := 1 + rand.Intn(50)
	return fmt.Sprintf("Q,%s,%.2f,%d,%s,%d,%.2f,%d,%.2f,%d,",
		symbol, price, size, now.Format("15:04:05.000000"),
		1000+rand.Intn(100000), price-0.25, 10+rand.Intn(90), price+0.25, 10+rand.Intn(90))
}
