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

package server

import (
	"encoding/binary"
	"net"
	"os"
	"testing"
	"time"

	beevik "github.com/beevik/ntp"
	"github.com/stretchr/testify/require"

	ntp "github.com/clockforge/sntp/ntp/protocol"
	"github.com/clockforge/sntp/ntp/responder/checker"
	"github.com/clockforge/sntp/ntp/responder/stats"
)

var ts = time.Unix(1585231321, 148166539)

// Packet request. From ntpdate run
var ntpRequest = &ntp.Packet{
	Settings:       227,
	Poll:           3,
	Precision:      -6,
	RootDelay:      65536,
	RootDispersion: 65536,
	TxTimeSec:      3794210679,
	TxTimeFrac:     2718216404,
}

func TestFillStaticHeadersStratum(t *testing.T) {
	stratum := 2
	s := &Server{Config: Config{Stratum: stratum}}
	response := &ntp.Packet{}
	s.fillStaticHeaders(response)
	require.Equal(t, uint8(stratum), response.Stratum)
}

func TestFillStaticHeadersReferenceID(t *testing.T) {
	s := &Server{Config: Config{RefID: "CHANDLER"}}
	response := &ntp.Packet{}

	s.fillStaticHeaders(response)
	require.Equal(t, binary.BigEndian.Uint32([]byte("CHAN")), response.ReferenceID, "Reference-ID must be 4 bytes")
}

func TestFillStaticHeadersRootDelay(t *testing.T) {
	s := &Server{}
	response := &ntp.Packet{}

	s.fillStaticHeaders(response)
	require.Equal(t, uint32(0), response.RootDelay)
}

func TestFillStaticHeadersRootDispersion(t *testing.T) {
	s := &Server{}
	response := &ntp.Packet{}

	s.fillStaticHeaders(response)
	require.Equal(t, uint32(0), response.RootDispersion)
}

func TestFillStaticHeadersPrecision(t *testing.T) {
	s := &Server{}
	response := &ntp.Packet{}

	s.fillStaticHeaders(response)
	require.Equal(t, int8(-20), response.Precision)
}

func TestGenerateResponsePoll(t *testing.T) {
	request := &ntp.Packet{Poll: 8}
	response := &ntp.Packet{}
	generateResponse(ts, ts, request, response)
	require.Equal(t, request.Poll, response.Poll)
}

func TestGenerateResponseSettings(t *testing.T) {
	// v4 client request becomes v4 server reply
	request := &ntp.Packet{Settings: 0x23}
	response := &ntp.Packet{}
	generateResponse(ts, ts, request, response)
	require.Equal(t, uint8(0x24), response.Settings)

	// version is echoed from the request
	request = &ntp.Packet{Settings: 0x1B}
	generateResponse(ts, ts, request, response)
	require.Equal(t, uint8(0x1C), response.Settings)
}

func TestGenerateResponseTimestamps(t *testing.T) {
	request := &ntp.Packet{TxTimeSec: 3794210679, TxTimeFrac: 2718216404}
	response := &ntp.Packet{}
	received := ts.Add(-10 * time.Millisecond)
	nowSec, nowFrac := ntp.Time(ts)
	receivedSec, receivedFrac := ntp.Time(received)

	generateResponse(ts, received, request, response)

	// Reference ts must be rounded to the closest /1000s
	lastSync := time.Unix(ts.Unix()/1000*1000, 0)
	lastSyncSec, lastSyncFrac := ntp.Time(lastSync)
	require.Equal(t, lastSyncSec, response.RefTimeSec)
	require.Equal(t, lastSyncFrac, response.RefTimeFrac)

	// Originate ts must be a bit-exact copy of the request transmit ts
	require.Equal(t, request.TxTimeSec, response.OrigTimeSec)
	require.Equal(t, request.TxTimeFrac, response.OrigTimeFrac)

	// Receive ts must be the time the request was read off the socket
	require.Equal(t, receivedSec, response.RxTimeSec)
	require.Equal(t, receivedFrac, response.RxTimeFrac)

	// Transmit ts must be current ts
	require.Equal(t, nowSec, response.TxTimeSec)
	require.Equal(t, nowFrac, response.TxTimeFrac)
}

// startTestServer spins up listener and workers on a random loopback port
func startTestServer(t *testing.T, workers int) *net.UDPConn {
	conn, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.ParseIP("127.0.0.1"), Port: 0})
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	s := &Server{
		Config: Config{RefID: "SNTP", Stratum: 2, Workers: workers},
		Stats:  &stats.JSONStats{},
		Checker: &checker.SimpleChecker{
			ExpectedListeners: 1,
			ExpectedWorkers:   int64(workers),
		},
		tasks: make(chan task, workers),
	}
	for i := 0; i < workers; i++ {
		go s.startWorker()
	}
	go s.startListener(conn)
	time.Sleep(100 * time.Millisecond)
	return conn
}

func TestListener(t *testing.T) {
	s := &Server{
		Stats: &stats.JSONStats{},
		Checker: &checker.SimpleChecker{
			ExpectedListeners: 1,
			ExpectedWorkers:   0,
		},
	}
	conn, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.ParseIP("127.0.0.1"), Port: 0})
	require.NoError(t, err)
	defer conn.Close()

	go s.startListener(conn)
	time.Sleep(100 * time.Millisecond)

	err = s.Checker.Check()
	require.NoError(t, err)
}

func TestWorker(t *testing.T) {
	s := &Server{
		Stats: &stats.JSONStats{},
		Checker: &checker.SimpleChecker{
			ExpectedListeners: 0,
			ExpectedWorkers:   1,
		},
		tasks: make(chan task),
	}

	go s.startWorker()
	time.Sleep(100 * time.Millisecond)
	err := s.Checker.Check()
	require.NoError(t, err)
}

func TestServerEndToEnd(t *testing.T) {
	conn := startTestServer(t, 2)

	cconn, err := net.Dial("udp", conn.LocalAddr().String())
	require.NoError(t, err)
	defer cconn.Close()

	requestBytes, err := ntpRequest.Bytes()
	require.NoError(t, err)
	_, err = cconn.Write(requestBytes)
	require.NoError(t, err)

	require.NoError(t, cconn.SetReadDeadline(time.Now().Add(time.Second)))
	buf := make([]byte, ntp.PacketSizeBytes)
	n, err := cconn.Read(buf)
	require.NoError(t, err)

	response, err := ntp.BytesToPacket(buf[:n])
	require.NoError(t, err)
	require.Equal(t, uint8(ntp.ModeServer), response.Mode())
	require.Equal(t, uint8(2), response.Stratum)

	// Origin timestamp must echo the request transmit timestamp bit-exact
	require.Equal(t, ntpRequest.TxTimeSec, response.OrigTimeSec)
	require.Equal(t, ntpRequest.TxTimeFrac, response.OrigTimeFrac)
}

// A short datagram must be discarded without a reply and without
// taking the server down.
func TestServerMalformedThenValid(t *testing.T) {
	conn := startTestServer(t, 1)

	cconn, err := net.Dial("udp", conn.LocalAddr().String())
	require.NoError(t, err)
	defer cconn.Close()

	_, err = cconn.Write([]byte{1, 2, 3})
	require.NoError(t, err)

	buf := make([]byte, ntp.PacketSizeBytes)
	require.NoError(t, cconn.SetReadDeadline(time.Now().Add(300*time.Millisecond)))
	_, err = cconn.Read(buf)
	require.Error(t, err)
	require.True(t, os.IsTimeout(err), "garbage must produce no reply")

	// Server must still answer a well-formed request
	requestBytes, err := ntpRequest.Bytes()
	require.NoError(t, err)
	_, err = cconn.Write(requestBytes)
	require.NoError(t, err)

	require.NoError(t, cconn.SetReadDeadline(time.Now().Add(time.Second)))
	n, err := cconn.Read(buf)
	require.NoError(t, err)

	response, err := ntp.BytesToPacket(buf[:n])
	require.NoError(t, err)
	require.Equal(t, uint8(ntp.ModeServer), response.Mode())
}

// Non-client-mode packets of valid length are dropped too
func TestServerIgnoresNonClientMode(t *testing.T) {
	conn := startTestServer(t, 1)

	cconn, err := net.Dial("udp", conn.LocalAddr().String())
	require.NoError(t, err)
	defer cconn.Close()

	reply := &ntp.Packet{Settings: 0x24}
	replyBytes, err := reply.Bytes()
	require.NoError(t, err)
	_, err = cconn.Write(replyBytes)
	require.NoError(t, err)

	buf := make([]byte, ntp.PacketSizeBytes)
	require.NoError(t, cconn.SetReadDeadline(time.Now().Add(300*time.Millisecond)))
	_, err = cconn.Read(buf)
	require.Error(t, err)
	require.True(t, os.IsTimeout(err))
}

// Drive the responder with the standard Go NTP client library
func TestServerInterop(t *testing.T) {
	conn := startTestServer(t, 2)
	port := conn.LocalAddr().(*net.UDPAddr).Port

	response, err := beevik.QueryWithOptions("127.0.0.1", beevik.QueryOptions{
		Port:    port,
		Timeout: 2 * time.Second,
	})
	require.NoError(t, err)
	require.NoError(t, response.Validate())
	require.Equal(t, uint8(2), response.Stratum)
	// loopback round trip, offset must be tiny
	require.Less(t, response.ClockOffset.Abs(), time.Second)
}

func Benchmark_generateResponse(b *testing.B) {
	for i := 0; i < b.N; i++ {
		request := &ntp.Packet{}
		response := &ntp.Packet{}
		generateResponse(ts, ts, request, response)
	}
}

func Benchmark_fillStaticHeaders(b *testing.B) {
	s := &Server{}
	for i := 0; i < b.N; i++ {
		response := &ntp.Packet{}
		s.fillStaticHeaders(response)
	}
}
