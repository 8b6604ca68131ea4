package main

import (
	"encoding/binary"
	"flag"
	"fmt"
	"io"
	"log"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"fenrir/internal/protocol"
)

const reportFixedHeaderLen = 1 + 8 + 8 + 8 + 8 + 1 + 2 + 2

func main() {
	serverAddr := flag.String("server", "127.0.0.1:9001", "Address of the exchange server")
	poolID := flag.String("pool", "BASE/QUOTE", "Pool id to trade against")
	action := flag.String("action", "place", "Action to perform: ['place', 'cancel', 'cancel-all']; use -type for market orders")

	sideStr := flag.String("side", "buy", "Order side: 'buy' or 'sell'")
	typeStr := flag.String("type", "limit", "Order type: 'limit' or 'market'")
	price := flag.Uint64("price", 100, "Limit price, fixed-point base units")
	qtyStr := flag.String("qty", "10", "Quantity or comma-separated list (e.g. 10,20,50)")
	expireMillis := flag.Uint64("expire", 0, "Expire timestamp (ms since epoch); 0 means one hour from now")
	restriction := flag.Uint("restriction", 0, "Time-in-force: 0=none 1=IOC 2=FOK 3=POST_OR_ABORT")

	orderID := flag.Uint64("order-id", 0, "Order id to cancel")

	flag.Parse()

	conn, err := net.Dial("tcp", *serverAddr)
	if err != nil {
		log.Fatalf("failed to connect to server at %s: %v", *serverAddr, err)
	}
	defer conn.Close()
	fmt.Printf("connected to %s, trading pool %q\n", *serverAddr, *poolID)

	go readReports(conn)

	isBid := strings.ToLower(*sideStr) != "sell"
	expire := *expireMillis
	if expire == 0 {
		expire = uint64(time.Now().Add(time.Hour).UnixMilli())
	}

	switch strings.ToLower(*action) {
	case "place":
		for i, q := range parseQuantities(*qtyStr) {
			var msg []byte
			if strings.ToLower(*typeStr) == "market" {
				msg = encodePlaceMarketOrder(*poolID, q, isBid, uint64(i+1))
			} else {
				msg = encodePlaceLimitOrder(*poolID, *price, q, isBid, expire, uint8(*restriction), uint64(i+1))
			}
			if _, err := conn.Write(msg); err != nil {
				log.Printf("failed to place order (qty %d): %v", q, err)
				continue
			}
			fmt.Printf("-> sent order: side=%s qty=%d price=%d\n", *sideStr, q, *price)
			time.Sleep(5 * time.Millisecond)
		}
	case "cancel":
		if *orderID == 0 {
			log.Fatal("-order-id is required for cancellation")
		}
		if _, err := conn.Write(encodeCancelOrder(*poolID, *orderID)); err != nil {
			log.Printf("failed to send cancel request: %v", err)
		} else {
			fmt.Printf("-> sent cancel request for order %d\n", *orderID)
		}
	case "cancel-all":
		if _, err := conn.Write(encodeCancelAllOrders(*poolID)); err != nil {
			log.Printf("failed to send cancel-all request: %v", err)
		} else {
			fmt.Println("-> sent cancel-all request")
		}
	default:
		log.Fatalf("unknown action: %s", *action)
	}

	fmt.Println("\nlistening for reports... (press ctrl+c to exit)")
	select {}
}

func parseQuantities(input string) []uint64 {
	parts := strings.Split(input, ",")
	var result []uint64
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if val, err := strconv.ParseUint(p, 10, 64); err == nil {
			result = append(result, val)
		} else {
			log.Printf("invalid quantity %q, skipping", p)
		}
	}
	return result
}

func encodePlaceLimitOrder(poolID string, price, quantity uint64, isBid bool, expire uint64, restriction uint8, clientOrderID uint64) []byte {
	body := protocol.PlaceLimitOrderHeaderLen + len(poolID)
	buf := make([]byte, protocol.BaseMessageHeaderLen+body)

	binary.BigEndian.PutUint16(buf[0:2], uint16(protocol.PlaceLimitOrder))
	offset := 2
	binary.BigEndian.PutUint16(buf[offset:offset+2], uint16(len(poolID)))
	offset += 2
	copy(buf[offset:], poolID)
	offset += len(poolID)
	binary.BigEndian.PutUint64(buf[offset:offset+8], price)
	offset += 8
	binary.BigEndian.PutUint64(buf[offset:offset+8], quantity)
	offset += 8
	if isBid {
		buf[offset] = 1
	}
	offset++
	binary.BigEndian.PutUint64(buf[offset:offset+8], expire)
	offset += 8
	buf[offset] = restriction
	offset++
	buf[offset] = 0 // self-match prevention: CANCEL_OLDEST
	offset++
	binary.BigEndian.PutUint64(buf[offset:offset+8], clientOrderID)
	return buf
}

func encodePlaceMarketOrder(poolID string, quantity uint64, isBid bool, clientOrderID uint64) []byte {
	body := protocol.PlaceMarketOrderHeaderLen + len(poolID)
	buf := make([]byte, protocol.BaseMessageHeaderLen+body)

	binary.BigEndian.PutUint16(buf[0:2], uint16(protocol.PlaceMarketOrder))
	offset := 2
	binary.BigEndian.PutUint16(buf[offset:offset+2], uint16(len(poolID)))
	offset += 2
	copy(buf[offset:], poolID)
	offset += len(poolID)
	binary.BigEndian.PutUint64(buf[offset:offset+8], quantity)
	offset += 8
	if isBid {
		buf[offset] = 1
	}
	offset++
	binary.BigEndian.PutUint64(buf[offset:offset+8], clientOrderID)
	return buf
}

func encodeCancelOrder(poolID string, orderID uint64) []byte {
	buf := make([]byte, protocol.BaseMessageHeaderLen+2+len(poolID)+8)
	binary.BigEndian.PutUint16(buf[0:2], uint16(protocol.CancelOrder))
	binary.BigEndian.PutUint16(buf[2:4], uint16(len(poolID)))
	copy(buf[4:], poolID)
	binary.BigEndian.PutUint64(buf[4+len(poolID):], orderID)
	return buf
}

func encodeCancelAllOrders(poolID string) []byte {
	buf := make([]byte, protocol.BaseMessageHeaderLen+2+len(poolID))
	binary.BigEndian.PutUint16(buf[0:2], uint16(protocol.CancelAllOrders))
	binary.BigEndian.PutUint16(buf[2:4], uint16(len(poolID)))
	copy(buf[4:], poolID)
	return buf
}

// readReports continuously reads and prints Report messages from the
// server.
func readReports(conn net.Conn) {
	for {
		headerBuf := make([]byte, reportFixedHeaderLen)
		if _, err := io.ReadFull(conn, headerBuf); err != nil {
			if err != io.EOF {
				log.Printf("connection lost: %v", err)
			}
			os.Exit(0)
		}

		reportType := protocol.ReportType(headerBuf[0])
		orderID := binary.BigEndian.Uint64(headerBuf[1:9])
		clientOrderID := binary.BigEndian.Uint64(headerBuf[9:17])
		filledBase := binary.BigEndian.Uint64(headerBuf[17:25])
		filledQuote := binary.BigEndian.Uint64(headerBuf[25:33])
		posted := headerBuf[33] != 0
		corrLen := binary.BigEndian.Uint16(headerBuf[34:36])
		errLen := binary.BigEndian.Uint16(headerBuf[36:38])

		varBuf := make([]byte, int(corrLen)+int(errLen))
		if len(varBuf) > 0 {
			if _, err := io.ReadFull(conn, varBuf); err != nil {
				log.Printf("error reading report body: %v", err)
				return
			}
		}
		corr := string(varBuf[:corrLen])
		errStr := string(varBuf[corrLen:])

		switch reportType {
		case protocol.ErrorReport:
			fmt.Printf("\n[ERROR] client_order_id=%d %s (corr=%s)\n", clientOrderID, errStr, corr)
		case protocol.PlacedReport:
			fmt.Printf("\n[PLACED] order_id=%d client_order_id=%d filled_base=%d filled_quote=%d posted=%v\n",
				orderID, clientOrderID, filledBase, filledQuote, posted)
		case protocol.CanceledReport:
			fmt.Printf("\n[CANCELED] order_id=%d\n", orderID)
		default:
			fmt.Printf("\n[REPORT %d] order_id=%d\n", reportType, orderID)
		}
	}
}
