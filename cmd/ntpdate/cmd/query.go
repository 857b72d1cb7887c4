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

package cmd

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/clockforge/sntp/ntp/client"
	ntp "github.com/clockforge/sntp/ntp/protocol"
)

var (
	queryServer   string
	queryPort     int
	queryTimeout  time.Duration
	queryRequests int
)

func init() {
	RootCmd.AddCommand(queryCmd)
	queryCmd.Flags().StringVarP(&queryServer, "server", "s", "", "Server to query")
	queryCmd.Flags().IntVarP(&queryPort, "port", "p", 123, "Port of the remote server")
	queryCmd.Flags().DurationVarP(&queryTimeout, "timeout", "t", client.DefaultTimeout, "How long to wait for the reply")
	queryCmd.Flags().IntVarP(&queryRequests, "requests", "r", 3, "How many requests to send")
}

func runQuery(server string, port int, timeout time.Duration, requests int) error {
	fmt.Printf("Server: %s:%d, Requests: %d\n", server, port, requests)

	var sumOffset time.Duration
	var sumDelay time.Duration

	for i := 0; i < requests; i++ {
		response, err := client.Query(&client.Config{Server: server, Port: port, Timeout: timeout})
		if err != nil {
			return err
		}

		sumOffset += response.Offset
		sumDelay += response.Delay

		// On last request print the full picture
		if i == requests-1 {
			fmt.Printf("Last:\n")
			fmt.Printf("Stratum: %d, Server time: %s\n", response.Packet.Stratum, response.ServerTime)
			fmt.Printf("Offset: %s, Network delay: %s\n", response.Offset, response.Delay)
		}
	}

	avgOffset := sumOffset / time.Duration(requests)
	avgDelay := sumDelay / time.Duration(requests)

	fmt.Printf("Average:\n")
	fmt.Printf("Offset: %s, Network delay: %s\n", avgOffset, avgDelay)
	fmt.Printf("Adjusted local time: %s\n", ntp.CurrentRealTime(time.Now(), avgOffset))
	return nil
}

var queryCmd = &cobra.Command{
	Use:   "query",
	Short: "Query remote NTP server. Acts like ntpdate -q",
	Long:  "'query' sends client requests to the remote server and reports its time and the local clock offset.",
	Run: func(_ *cobra.Command, _ []string) {
		ConfigureVerbosity()
		if queryServer == "" {
			fmt.Println("server must be specified")
			os.Exit(1)
		}
		if queryRequests < 1 {
			fmt.Println("requests must be at least 1")
			os.Exit(1)
		}
		if err := runQuery(queryServer, queryPort, queryTimeout, queryRequests); err != nil {
			fmt.Println(err)
			os.Exit(1)
		}
	},
}
