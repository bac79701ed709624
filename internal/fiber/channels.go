package fiber

import (
	"candy/internal/heap"
)

// channelWaiters tracks, for one channel, which fiber owns each
// operation id currently parked in that channel's SendWaiters or
// ReceiveWaiters (heap.Channel itself only stores bare operation ids —
// spec.md section 5 leaves fiber identity to the scheduler, since a
// Channel object has no notion of which fiber is on the other end of an
// operation).
type channelWaiters struct {
	sends    map[uint64]ID
	receives map[uint64]ID
}

func (s *Vm) channelSet(handle heap.Handle) *channelWaiters {
	cw := s.channels[handle]
	if cw == nil {
		cw = &channelWaiters{sends: map[uint64]ID{}, receives: map[uint64]ID{}}
		s.channels[handle] = cw
	}
	return cw
}

func (s *Vm) registerChannelWaiter(e *entry) {
	op := e.fiber.PendingChannel
	cw := s.channelSet(op.ChannelHandle)
	if op.IsSend {
		cw.sends[op.OperationID] = e.id
	} else {
		cw.receives[op.OperationID] = e.id
	}
}

func (s *Vm) settleChannelWaiters(id ID) {
	e := s.fibers[id]
	if e == nil || e.fiber.PendingChannel == nil {
		return
	}
	op := e.fiber.PendingChannel
	cw := s.channels[op.ChannelHandle]
	if cw == nil {
		return
	}
	if op.IsSend {
		delete(cw.sends, op.OperationID)
	} else {
		delete(cw.receives, op.OperationID)
	}
}

// reconcileChannels replays every channel's pending operations against
// its current buffer/waiter state, waking fibers whose operation a
// builtin already resolved (builtins_channel.go moves packets into the
// shared buffer without itself knowing which fiber is on the other
// side) and matching up rendezvous pairs a zero-capacity channel leaves
// for the scheduler (builtins_channel.go's doc comment: "the blocking
// path ... for internal/fiber's scheduler loop to resolve").
func (s *Vm) reconcileChannels() {
	for handle, cw := range s.channels {
		obj := s.channelHeap.Get(handle)
		if obj == nil || obj.Channel == nil {
			continue
		}
		s.reconcileChannel(obj.Channel, cw)
	}
}

func (s *Vm) reconcileChannel(ch *heap.Channel, cw *channelWaiters) {
	for {
		if len(ch.Buffer) > 0 && len(ch.ReceiveWaiters) > 0 {
			packet := ch.Buffer[0]
			ch.Buffer = ch.Buffer[1:]
			opID := ch.ReceiveWaiters[0]
			ch.ReceiveWaiters = ch.ReceiveWaiters[1:]
			if fiberID, ok := cw.receives[opID]; ok {
				delete(cw.receives, opID)
				s.deliverToReceiver(fiberID, packet)
			}
			continue
		}
		if len(ch.Buffer) == 0 && len(ch.SendWaiters) > 0 && len(ch.ReceiveWaiters) > 0 {
			sendWaiter := ch.SendWaiters[0]
			ch.SendWaiters = ch.SendWaiters[1:]
			recvOp := ch.ReceiveWaiters[0]
			ch.ReceiveWaiters = ch.ReceiveWaiters[1:]
			senderID, sok := cw.sends[sendWaiter.OperationID]
			receiverID, rok := cw.receives[recvOp]
			delete(cw.sends, sendWaiter.OperationID)
			delete(cw.receives, recvOp)
			if rok {
				s.deliverToReceiver(receiverID, sendWaiter.Packet)
			}
			if sok {
				s.resume(senderID, heap.Nothing)
			}
			continue
		}
		progressed := false
		for opID, fiberID := range cw.sends {
			if !containsSend(ch.SendWaiters, opID) {
				delete(cw.sends, opID)
				s.resume(fiberID, heap.Nothing)
				progressed = true
			}
		}
		if !progressed {
			return
		}
	}
}

func (s *Vm) deliverToReceiver(fiberID ID, packet heap.InlineObject) {
	e := s.fibers[fiberID]
	if e == nil || e.settled {
		return
	}
	delivered := e.fiber.DeliverChannelPacket(packet)
	s.resume(fiberID, delivered)
}

func containsSend(waiters []heap.PendingSend, opID uint64) bool {
	for _, w := range waiters {
		if w.OperationID == opID {
			return true
		}
	}
	return false
}
