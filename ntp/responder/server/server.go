/*
Copyright (c) Facebook, Inc. and its affiliates.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

/*
Package server implements simple UDP server to work with NTP packets.
In addition, it runs checker and stats implementations.
*/
package server

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"net"
	"time"

	ntp "github.com/clockforge/sntp/ntp/protocol"
	log "github.com/sirupsen/logrus"
)

// task is a data structure with everything needed to work independently on NTP packet.
type task struct {
	conn     *net.UDPConn
	addr     *net.UDPAddr
	received time.Time
	request  *ntp.Packet
	stats    Stats
}

// Server is a type for UDP server which handles connections.
type Server struct {
	Config  Config
	Stats   Stats
	Checker Checker
	tasks   chan task
}

// Start binds the UDP socket and serves requests until ctx is cancelled.
// Failure to acquire the socket is the only fatal error and is returned
// to the caller; everything past that point is log-and-continue.
func (s *Server) Start(ctx context.Context, cancelFunc context.CancelFunc) error {
	conn, err := net.ListenUDP("udp", &net.UDPAddr{IP: s.Config.IP, Port: s.Config.Port})
	if err != nil {
		return fmt.Errorf("binding to %s:%d: %w", s.Config.IP, s.Config.Port, err)
	}
	defer conn.Close()

	log.Infof("Creating %d goroutine workers", s.Config.Workers)
	s.tasks = make(chan task, s.Config.Workers)
	// Pre-create workers
	for i := 0; i < s.Config.Workers; i++ {
		go s.startWorker()
	}

	log.Infof("Starting listener on %s", conn.LocalAddr())
	go s.startListener(conn)

	// Run checker periodically
	go func() {
		for {
			time.Sleep(time.Minute)
			log.Debug("[Checker] running internal health checks")
			if err := s.Checker.Check(); err != nil {
				log.Errorf("[Checker] internal error: %v", err)
				cancelFunc()
				return
			}
		}
	}()

	<-ctx.Done()
	return nil
}

func (s *Server) startListener(conn *net.UDPConn) {
	s.Checker.IncListeners()
	defer s.Checker.DecListeners()
	s.Stats.IncListeners()
	defer s.Stats.DecListeners()

	buf := make([]byte, ntp.PacketSizeBytes)
	for {
		bbuf, addr, err := conn.ReadFromUDP(buf)
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				// our connection was closed
				log.Warning("listener connection closed, exiting listener")
				return
			}
			log.Errorf("Failed to read packet on %s: %v", conn.LocalAddr(), err)
			s.Stats.IncReadError()
			continue
		}
		received := time.Now()

		request, err := ntp.BytesToPacket(buf[:bbuf])
		if err != nil {
			log.Debugf("Malformed packet from %s, discarding: %v", addr, err)
			s.Stats.IncInvalidFormat()
			continue
		}
		s.Stats.IncRequests()
		s.tasks <- task{conn: conn, addr: addr, received: received, request: request, stats: s.Stats}
	}
}

func (s *Server) startWorker() {
	s.Checker.IncWorkers()
	defer s.Checker.DecWorkers()
	s.Stats.IncWorkers()
	defer s.Stats.DecWorkers()

	// Pre-allocating response buffer
	response := &ntp.Packet{}
	s.fillStaticHeaders(response)
	for {
		t := <-s.tasks
		t.serve(response, s.Config.ExtraOffset)
	}
}

// serve checks the request format
// gets time from local and responds.
func (t *task) serve(response *ntp.Packet, extraoffset time.Duration) {
	log.Debugf("Received request: %+v", t.request)
	if !t.request.ValidSettingsFormat() {
		log.Debugf("Invalid query, discarding: %v", t.request)
		t.stats.IncInvalidFormat()
		return
	}

	generateResponse(time.Now().Add(extraoffset), t.received.Add(extraoffset), t.request, response)
	responseBytes, err := response.Bytes()
	if err != nil {
		log.Errorf("Failed to convert %v to bytes: %v", response, err)
		return
	}

	log.Debugf("Writing response: %+v", response)
	if _, err := t.conn.WriteToUDP(responseBytes, t.addr); err != nil {
		log.Debugf("Failed to respond to the request: %v", err)
		return
	}
	t.stats.IncResponses()
}

// fillStaticHeaders pre-sets all the headers per worker which will never change
func (s *Server) fillStaticHeaders(response *ntp.Packet) {
	response.Stratum = uint8(s.Config.Stratum)
	// ~1 microsecond
	response.Precision = -20
	response.RootDelay = 0
	response.RootDispersion = 0
	response.ReferenceID = binary.BigEndian.Uint32([]byte(fmt.Sprintf("%-4s", s.Config.RefID)))
}

// generateResponse generates response NTP packet
// See more in protocol/packet.go.
func generateResponse(now time.Time, received time.Time, request, response *ntp.Packet) {
	// Echo the version, mode becomes server reply
	vn := request.Settings & 0x38
	response.Settings = vn | ntp.ModeServer

	// Poll
	response.Poll = request.Poll

	// Reference Timestamp
	// RFC: "Local time at which the local clock was last set or corrected."
	// There is no real reference clock behind this server, so we have to
	// come up with something. Just returning "now" will not fly and chronyd/ntpd
	// will exclude "inconsistent host". So once per 1000s sounds "consistent" enough
	lastSync := time.Unix(now.Unix()/1000*1000, 0)
	lastSyncSec, lastSyncFrac := ntp.Time(lastSync)
	response.RefTimeSec = lastSyncSec
	response.RefTimeFrac = lastSyncFrac

	// Originate Timestamp
	// RFC: "Local time at which the request departed the client host for the service host."
	// Copied bit-exact from the request: this is what lets the client pair
	// the reply with its request and measure the round trip.
	response.OrigTimeSec = request.TxTimeSec
	response.OrigTimeFrac = request.TxTimeFrac

	// Receive Timestamp
	// RFC: "Local time at which the request arrived at the service host."
	receivedSec, receivedFrac := ntp.Time(received)
	response.RxTimeSec = receivedSec
	response.RxTimeFrac = receivedFrac

	// Transmit Timestamp
	// RFC: "Local time at which the reply departed the service host for the client host."
	nowSec, nowFrac := ntp.Time(now)
	response.TxTimeSec = nowSec
	response.TxTimeFrac = nowFrac
}
