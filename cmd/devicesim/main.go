// devicesim posts card reads the way the reader firmware does, for trying the
// relay without hardware.
package main

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/avvvet/card-relay/internal/ingress"
	flag "github.com/spf13/pflag"
)

// ErrRejected means the relay answered with anything but code=0000.
var ErrRejected = errors.New("read rejected")

func main() {
	url := flag.String("url", "http://localhost:4030/temp/cardread", "card read endpoint")
	token := flag.String("token", "4111111111111111", "card token to send; a counter is appended when --count > 1")
	device := flag.String("device", "7", "device number")
	count := flag.Int("count", 1, "number of reads to send")
	interval := flag.Duration("interval", time.Second, "pause between reads")
	flag.Parse()

	client := &http.Client{Timeout: 10 * time.Second}

	failed := 0
	for i := 0; i < *count; i++ {
		tok := *token
		if *count > 1 {
			tok += strconv.Itoa(i)
		}

		reply, err := send(client, *url, Payload(tok, *device))
		if err != nil {
			fmt.Fprintf(os.Stderr, "read %d: %v\n", i, err)
			failed++
		} else {
			fmt.Printf("read %d token=%s reply=%s\n", i, tok, reply)
		}

		if i < *count-1 {
			time.Sleep(*interval)
		}
	}

	if failed > 0 {
		os.Exit(1)
	}
}

// Payload builds the body a reader sends for one swipe.
func Payload(token, device string) string {
	return ingress.ResultMarker + token + ingress.DeviceMarker + "=" + device
}

func send(client *http.Client, url, body string) (string, error) {
	resp, err := client.Post(url, "text/html", strings.NewReader(body))
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	b, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("unexpected status %s", resp.Status)
	}
	reply := string(b)
	if reply != ingress.CodeSuccess {
		return reply, fmt.Errorf("%w: %s", ErrRejected, reply)
	}
	return reply, nil
}
