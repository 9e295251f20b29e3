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
	"io"
	"net"
	"os"
	"strconv"

	"github.com/davecgh/go-spew/spew"
	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/facebook/wrptp/ptp/driver"
	ptp "github.com/facebook/wrptp/ptp/protocol"
)

var dumpTypesFlag []string

func init() {
	RootCmd.AddCommand(dumpCmd)
	dumpCmd.Flags().StringSliceVarP(&dumpTypesFlag, "type", "t", nil, "message types to print, all if empty")
	layers.RegisterUDPPortLayerType(driver.PortEvent, LayerTypePTP)
	layers.RegisterUDPPortLayerType(driver.PortGeneral, LayerTypePTP)
}

// LayerPTP is a decoded PTP message
type LayerPTP struct {
	layers.BaseLayer

	Packet ptp.Packet
}

// LayerTypePTP is registered as a layer with gopacket
var LayerTypePTP = gopacket.RegisterLayerType(
	1588,
	gopacket.LayerTypeMetadata{
		Name:    "PTPv2",
		Decoder: gopacket.DecodeFunc(decodePTP),
	},
)

// LayerType returns type this layer implements
func (l *LayerPTP) LayerType() gopacket.LayerType {
	return LayerTypePTP
}

// Payload is empty as it's the final layer
func (l *LayerPTP) Payload() []byte {
	return nil
}

func decodePTP(data []byte, p gopacket.PacketBuilder) error {
	pkt, err := ptp.DecodePacket(data)
	if err != nil {
		return fmt.Errorf("decoding PTPv2 packet: %w", err)
	}
	d := &LayerPTP{BaseLayer: layers.BaseLayer{Contents: data}, Packet: pkt}
	p.AddLayer(d)
	p.SetApplicationLayer(d)
	return nil
}

// packetHandle abstracts packet handles provided by pcapgo.Reader and pcapgo.NGReader
type packetHandle interface {
	gopacket.PacketDataSource
	LinkType() layers.LinkType
}

func openCapture(f io.ReadSeeker) (packetHandle, error) {
	handle, err := pcapgo.NewNgReader(f, pcapgo.DefaultNgReaderOptions)
	if err == nil {
		return handle, nil
	}
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return nil, err
	}
	return pcapgo.NewReader(f)
}

func wrSummary(pkt ptp.Packet) string {
	var tlvs []ptp.TLV
	switch p := pkt.(type) {
	case *ptp.Announce:
		tlvs = p.TLVs
	case *ptp.Signaling:
		tlvs = p.TLVs
	}
	wr := ptp.FindWRTLV(tlvs)
	if wr == nil {
		return ""
	}
	switch wr.MessageID {
	case ptp.WRAnnounce:
		return fmt.Sprintf(" [WR flags 0x%x]", uint16(wr.Flags))
	case ptp.WRCalibrate:
		return fmt.Sprintf(" [WR %s pattern=%v period=%dus]", wr.MessageID, wr.CalSendPattern, wr.CalPeriod)
	case ptp.WRCalibrated:
		return fmt.Sprintf(" [WR %s deltaTx=%dps deltaRx=%dps]", wr.MessageID, wr.DeltaTx>>16, wr.DeltaRx>>16)
	}
	return fmt.Sprintf(" [WR %s]", wr.MessageID)
}

// dumpCapture prints PTP messages of the capture in f, returning how many were printed
func dumpCapture(f io.ReadSeeker, filter map[ptp.MessageType]bool, w io.Writer, verbose bool) (int, error) {
	handle, err := openCapture(f)
	if err != nil {
		return 0, err
	}
	n := 0
	source := gopacket.NewPacketSource(handle, handle.LinkType())
	for packet := range source.Packets() {
		l := packet.Layer(LayerTypePTP)
		if l == nil {
			continue
		}
		msg := l.(*LayerPTP).Packet
		if len(filter) > 0 && !filter[msg.MessageType()] {
			continue
		}
		var srcIP, dstIP net.IP
		if ip, ok := packet.Layer(layers.LayerTypeIPv4).(*layers.IPv4); ok {
			srcIP, dstIP = ip.SrcIP, ip.DstIP
		}
		var srcPort, dstPort layers.UDPPort
		if udp, ok := packet.Layer(layers.LayerTypeUDP).(*layers.UDP); ok {
			srcPort, dstPort = udp.SrcPort, udp.DstPort
		}
		fmt.Fprintf(w, "%s -> %s %s%s\n",
			net.JoinHostPort(srcIP.String(), strconv.Itoa(int(srcPort))),
			net.JoinHostPort(dstIP.String(), strconv.Itoa(int(dstPort))),
			msg.MessageType(),
			wrSummary(msg),
		)
		if verbose {
			spew.Fdump(w, msg)
		}
		n++
	}
	return n, nil
}

var dumpCmd = &cobra.Command{
	Use:   "dump capture.pcap",
	Short: "Print PTP and White Rabbit messages from a packet capture",
	Args:  cobra.ExactArgs(1),
	Run: func(_ *cobra.Command, args []string) {
		ConfigureVerbosity()
		filter := map[ptp.MessageType]bool{}
		for _, t := range dumpTypesFlag {
			m, err := ptp.ParseMessageType(t)
			if err != nil {
				log.Fatal(err)
			}
			filter[m] = true
		}
		f, err := os.Open(args[0])
		if err != nil {
			log.Fatal(err)
		}
		defer f.Close()
		if _, err := dumpCapture(f, filter, os.Stdout, rootVerboseFlag); err != nil {
			log.Fatalf("decoding %s: %v", args[0], err)
		}
	},
}
