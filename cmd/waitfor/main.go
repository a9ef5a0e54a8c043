package main

import (
	"flag"
	"net"
	"os"
	"time"

	log "github.com/sirupsen/logrus"
)

func init() {
	log.SetFormatter(&log.JSONFormatter{})
	log.SetOutput(os.Stdout)
}

func main() {
	// define flags for host and port
	host := flag.String("host", "localhost", "the host to connect to")
	port := flag.String("port", "5432", "the port to connect to")
	attempts := flag.Int("attempts", 30, "connection attempts before giving up")
	timeout := flag.Duration("timeout", 10*time.Second, "timeout of a single connection attempt")
	flag.Parse()

	addr := net.JoinHostPort(*host, *port)
	for i := 1; i <= *attempts; i++ {
		conn, err := net.DialTimeout("tcp", addr, *timeout)
		if err == nil {
			_ = conn.Close()
			log.WithField("addr", addr).Info("TCP connection available")
			return
		}

		log.WithError(err).WithField("addr", addr).WithField("attempt", i).Info("connection not yet available")
		time.Sleep(1 * time.Second)
	}
	log.WithField("addr", addr).Fatal("could not open TCP connection after max attempts")
}
