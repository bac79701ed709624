package vm

import "candy/internal/heap"

// Channel builtins manipulate Channel objects in ChannelHeap rather than
// Heap: per spec.md section 5, a fiber owns its value heap exclusively,
// but a channel is shared mutable state visible to every fiber holding
// a reference to it, so internal/fiber gives every fiber spawned from
// the same root one shared ChannelHeap (see fiber.go's doc comment).
//
// send/receive only handle the non-blocking fast path here (buffer has
// room / a packet is already buffered); the blocking path suspends with
// a PendingChannelOp for internal/fiber's scheduler loop to resolve by
// waking the matching counterpart and calling ResumeWithValue.
func (f *Fiber) asChannel(v heap.InlineObject) (*heap.Object, bool) {
	if v.Kind != heap.KindPointerValue {
		return nil, false
	}
	obj := f.ChannelHeap.Get(v.Handle)
	if obj == nil || obj.Kind != heap.KindChannel {
		return nil, false
	}
	return obj, true
}

func (f *Fiber) builtinChannelCreate(args []heap.InlineObject, responsible heap.InlineObject) {
	capacity, ok := f.asInt(args[0])
	if !ok || capacity.Sign() < 0 {
		f.triggerPanic("channelCreate expects a non-negative int capacity", responsible)
		return
	}
	handle := f.ChannelHeap.Allocate(&heap.Object{Kind: heap.KindChannel, Channel: &heap.Channel{Capacity: int(capacity.Int64())}})
	f.push(heap.Pointer(handle))
}

// transferIntoChannelHeap moves v out of f's own heap and into the
// shared ChannelHeap, so the packet survives independently of whatever
// the sending fiber's heap does next and can later be cloned into
// whichever fiber ends up receiving it (spec.md section 5's
// clone-with-mapping transfer). Inline values (ints, tags without
// payload, builtin refs) need no transfer at all.
func (f *Fiber) transferIntoChannelHeap(v heap.InlineObject) heap.InlineObject {
	if v.Kind != heap.KindPointerValue {
		return v
	}
	newHandle, _ := heap.Clone(f.ChannelHeap, f.Heap, v.Handle)
	heap.Drop(f.Heap, v)
	return heap.Pointer(newHandle)
}

// DeliverChannelPacket clones packet out of the shared ChannelHeap into
// this fiber's own heap and releases the channel's copy, completing the
// transfer transferIntoChannelHeap began on the sending side. Called by
// both the receiving-fast-path below and by internal/fiber once it
// matches a parked receiver against an arriving sender.
func (f *Fiber) DeliverChannelPacket(packet heap.InlineObject) heap.InlineObject {
	if packet.Kind != heap.KindPointerValue {
		return packet
	}
	newHandle, _ := heap.Clone(f.Heap, f.ChannelHeap, packet.Handle)
	heap.Drop(f.ChannelHeap, packet)
	return heap.Pointer(newHandle)
}

func (f *Fiber) builtinChannelSend(args []heap.InlineObject, responsible heap.InlineObject) {
	ch, ok := f.asChannel(args[0])
	if !ok {
		f.triggerPanic("channelSend expects a channel", responsible)
		return
	}
	packet := f.transferIntoChannelHeap(args[1])

	if len(ch.Channel.ReceiveWaiters) > 0 || len(ch.Channel.Buffer) < ch.Channel.Capacity {
		ch.Channel.Buffer = append(ch.Channel.Buffer, packet)
		f.push(heap.Nothing)
		return
	}

	opID := f.NextOperationID()
	ch.Channel.SendWaiters = append(ch.Channel.SendWaiters, heap.PendingSend{OperationID: opID, Packet: packet})
	f.Status = StatusWaitingForChannel
	f.PendingChannel = &PendingChannelOp{OperationID: opID, IsSend: true, Packet: packet, ChannelHandle: args[0].Handle}
}

func (f *Fiber) builtinChannelReceive(args []heap.InlineObject, responsible heap.InlineObject) {
	ch, ok := f.asChannel(args[0])
	if !ok {
		f.triggerPanic("channelReceive expects a channel", responsible)
		return
	}

	if len(ch.Channel.Buffer) > 0 {
		packet := ch.Channel.Buffer[0]
		ch.Channel.Buffer = ch.Channel.Buffer[1:]
		if len(ch.Channel.SendWaiters) > 0 {
			waiter := ch.Channel.SendWaiters[0]
			ch.Channel.SendWaiters = ch.Channel.SendWaiters[1:]
			ch.Channel.Buffer = append(ch.Channel.Buffer, waiter.Packet)
		}
		f.push(f.DeliverChannelPacket(packet))
		return
	}

	opID := f.NextOperationID()
	ch.Channel.ReceiveWaiters = append(ch.Channel.ReceiveWaiters, opID)
	f.Status = StatusWaitingForChannel
	f.PendingChannel = &PendingChannelOp{OperationID: opID, IsSend: false, ChannelHandle: args[0].Handle}
}
