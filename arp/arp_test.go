package arp

import (
	"errors"
	"testing"

	"github.com/soypat/nettap/ethernet"
)

func buildRequestFrame(t *testing.T, senderMAC ethernet.MAC, senderIP, targetIP IPv4) ([]byte, ethernet.Frame) {
	t.Helper()
	payload := make([]byte, HeaderSize+PayloadIPv4Size)
	idx := 0
	putU16 := func(v uint16) {
		payload[idx] = byte(v >> 8)
		payload[idx+1] = byte(v)
		idx += 2
	}
	putU8 := func(v uint8) { payload[idx] = v; idx++ }
	putMAC := func(m ethernet.MAC) { copy(payload[idx:], m[:]); idx += 6 }
	putIP := func(a IPv4) { copy(payload[idx:], a[:]); idx += 4 }

	putU16(HWTypeEthernet)
	putU16(ProtoTypeIPv4)
	putU8(6)
	putU8(4)
	putU16(OpRequest)
	putMAC(senderMAC)
	putIP(senderIP)
	putMAC(ethernet.MAC{})
	putIP(targetIP)

	buf := make([]byte, ethernet.MaxFrameSize)
	n, err := ethernet.Emit(buf, ethernet.Broadcast, senderMAC, ethernet.EtherTypeARP, payload, 0)
	if err != nil {
		t.Fatalf("emit request: %v", err)
	}
	frame, err := ethernet.Parse(buf[:n], ethernet.ParseOptions{})
	if err != nil {
		t.Fatalf("parse request: %v", err)
	}
	return buf[:n], frame
}

func TestHandleRequestRepliesAndLearnsSender(t *testing.T) {
	deviceMAC := ethernet.MAC{0xde, 0xad, 0xbe, 0xef, 0x00, 0x01}
	senderMAC := ethernet.MAC{1, 2, 3, 4, 5, 6}
	senderIP := IPv4{192, 168, 1, 50}
	deviceIP := IPv4{192, 168, 1, 1}

	cache := NewCache()
	h := &Handler{Cache: cache, DeviceMAC: deviceMAC}

	_, frame := buildRequestFrame(t, senderMAC, senderIP, deviceIP)
	reply, _, _, err := h.Handle(frame)
	if err != nil {
		t.Fatalf("handle: %v", err)
	}

	if reply.Dst != senderMAC {
		t.Fatalf("reply dst = %v, want %v", reply.Dst, senderMAC)
	}
	if reply.Src != deviceMAC {
		t.Fatalf("reply src = %v, want %v", reply.Src, deviceMAC)
	}
	if reply.EtherType != ethernet.EtherTypeARP {
		t.Fatalf("reply ethertype = %#x, want ARP", reply.EtherType)
	}

	pkt, err := Parse(reply.Payload)
	if err != nil {
		t.Fatalf("parse reply payload: %v", err)
	}
	if pkt.Op != OpReply {
		t.Fatalf("op = %d, want OpReply", pkt.Op)
	}
	if pkt.SenderHW != deviceMAC {
		t.Fatalf("reply sender HW = %v, want device MAC", pkt.SenderHW)
	}
	if pkt.SenderPA != deviceIP {
		t.Fatalf("reply sender PA = %v, want %v", pkt.SenderPA, deviceIP)
	}
	if pkt.TargetHW != senderMAC {
		t.Fatalf("reply target HW = %v, want %v", pkt.TargetHW, senderMAC)
	}
	if pkt.TargetPA != senderIP {
		t.Fatalf("reply target PA = %v, want %v", pkt.TargetPA, senderIP)
	}

	entry, ok := cache.Lookup(senderIP)
	if !ok {
		t.Fatal("sender address was not learned into the cache")
	}
	if entry.MAC != senderMAC {
		t.Fatalf("cached MAC = %v, want %v", entry.MAC, senderMAC)
	}
}

func TestHandleUnsupportedOpcodeStillLearnsSender(t *testing.T) {
	cache := NewCache()
	h := &Handler{Cache: cache, DeviceMAC: ethernet.MAC{1}}
	senderMAC := ethernet.MAC{9, 9, 9, 9, 9, 9}
	senderIP := IPv4{10, 0, 0, 5}

	_, frame := buildRequestFrame(t, senderMAC, senderIP, IPv4{10, 0, 0, 1})
	// Flip the opcode to something unsupported (reply, as if we had
	// received an unsolicited reply rather than a request).
	idx := ethernet.HeaderSize + HeaderSize - 2
	frame.Payload[6] = byte(OpReply >> 8)
	frame.Payload[7] = byte(OpReply)
	_ = idx

	_, _, _, err := h.Handle(frame)
	if !errors.Is(err, ErrUnsupportedOp) {
		t.Fatalf("got err=%v, want ErrUnsupportedOp", err)
	}
	if _, ok := cache.Lookup(senderIP); !ok {
		t.Fatal("sender should still be learned even though opcode is unsupported")
	}
}

func TestHandleRejectsShortPacket(t *testing.T) {
	cache := NewCache()
	h := &Handler{Cache: cache, DeviceMAC: ethernet.MAC{1}}
	frame := ethernet.Frame{Payload: make([]byte, 4)}
	_, _, _, err := h.Handle(frame)
	if !errors.Is(err, ErrShortPacket) {
		t.Fatalf("got err=%v, want ErrShortPacket", err)
	}
}

func TestChainedCRCGateChangesReplyFCS(t *testing.T) {
	senderMAC := ethernet.MAC{1, 1, 1, 1, 1, 1}
	senderIP := IPv4{172, 16, 0, 9}
	deviceIP := IPv4{172, 16, 0, 1}

	_, frame1 := buildRequestFrame(t, senderMAC, senderIP, deviceIP)
	h1 := &Handler{Cache: NewCache(), DeviceMAC: ethernet.MAC{2}, ChainedCRC: false}
	reply1, _, _, err := h1.Handle(frame1)
	if err != nil {
		t.Fatalf("handle (unchained): %v", err)
	}

	_, frame2 := buildRequestFrame(t, senderMAC, senderIP, deviceIP)
	h2 := &Handler{Cache: NewCache(), DeviceMAC: ethernet.MAC{2}, ChainedCRC: true}
	reply2, _, _, err := h2.Handle(frame2)
	if err != nil {
		t.Fatalf("handle (chained): %v", err)
	}

	if reply1.FCS == reply2.FCS {
		t.Fatal("expected ChainedCRC to change the reply's frame check sequence")
	}
}
