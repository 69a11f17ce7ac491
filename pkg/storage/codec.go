package storage

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/uhyunpark/darkpool/pkg/app/core/orderbook"
)

// Book snapshot layout, big-endian:
//
//	magic "DPB1" | capacity u16 | nbuys u16 | nsells u16 | orders...
//
// Each order is id u64 | owner [32] | base [32] | quote [32] | amount u64 |
// price u64 | side u8 | timestamp u64. Orders are written in slot order so
// the heap layout survives a round trip unchanged.
var bookMagic = [4]byte{'D', 'P', 'B', '1'}

const (
	bookHeaderSize = 4 + 2 + 2 + 2
	orderSize      = 8 + 32*3 + 8 + 8 + 1 + 8
)

var ErrCorruptSnapshot = errors.New("corrupt book snapshot")

func EncodeBook(ob *orderbook.OrderBook) []byte {
	buys := ob.Orders(orderbook.Buy)
	sells := ob.Orders(orderbook.Sell)

	buf := make([]byte, bookHeaderSize, bookHeaderSize+(len(buys)+len(sells))*orderSize)
	copy(buf[0:4], bookMagic[:])
	binary.BigEndian.PutUint16(buf[4:6], uint16(ob.Cap()))
	binary.BigEndian.PutUint16(buf[6:8], uint16(len(buys)))
	binary.BigEndian.PutUint16(buf[8:10], uint16(len(sells)))

	for _, o := range buys {
		buf = appendOrder(buf, &o)
	}
	for _, o := range sells {
		buf = appendOrder(buf, &o)
	}
	return buf
}

func DecodeBook(b []byte) (*orderbook.OrderBook, error) {
	if len(b) < bookHeaderSize || [4]byte(b[0:4]) != bookMagic {
		return nil, fmt.Errorf("%w: bad header", ErrCorruptSnapshot)
	}
	capacity := int(binary.BigEndian.Uint16(b[4:6]))
	nb := int(binary.BigEndian.Uint16(b[6:8]))
	ns := int(binary.BigEndian.Uint16(b[8:10]))
	if len(b) != bookHeaderSize+(nb+ns)*orderSize {
		return nil, fmt.Errorf("%w: length %d for %d orders", ErrCorruptSnapshot, len(b), nb+ns)
	}

	rest := b[bookHeaderSize:]
	buys := make([]orderbook.Order, nb)
	for i := range buys {
		buys[i] = readOrder(rest)
		rest = rest[orderSize:]
	}
	sells := make([]orderbook.Order, ns)
	for i := range sells {
		sells[i] = readOrder(rest)
		rest = rest[orderSize:]
	}

	ob, err := orderbook.Restore(capacity, buys, sells)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruptSnapshot, err)
	}
	return ob, nil
}

func appendOrder(buf []byte, o *orderbook.Order) []byte {
	buf = binary.BigEndian.AppendUint64(buf, o.ID)
	buf = append(buf, o.Owner[:]...)
	buf = append(buf, o.BaseMint[:]...)
	buf = append(buf, o.QuoteMint[:]...)
	buf = binary.BigEndian.AppendUint64(buf, o.Amount)
	buf = binary.BigEndian.AppendUint64(buf, o.Price)
	buf = append(buf, byte(o.Side))
	return binary.BigEndian.AppendUint64(buf, o.Timestamp)
}

func readOrder(b []byte) orderbook.Order {
	var o orderbook.Order
	o.ID = binary.BigEndian.Uint64(b[0:8])
	copy(o.Owner[:], b[8:40])
	copy(o.BaseMint[:], b[40:72])
	copy(o.QuoteMint[:], b[72:104])
	o.Amount = binary.BigEndian.Uint64(b[104:112])
	o.Price = binary.BigEndian.Uint64(b[112:120])
	o.Side = orderbook.Side(b[120])
	o.Timestamp = binary.BigEndian.Uint64(b[121:129])
	return o
}
