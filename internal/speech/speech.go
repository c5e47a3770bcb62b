// Package speech turns advisories into spoken audio. Synthesis runs on a
// sidecar service; dispatch is fire-and-forget so a slow or missing
// synthesizer never blocks snapshot ingestion.
package speech

import (
	"bytes"
	"fmt"
	"io"
	"log"
	"net/http"
	"sync"
	"time"

	json "github.com/goccy/go-json"

	"cs2coach/internal/advisor"
)

// Speaker synthesizes and plays one line of text.
type Speaker interface {
	SynthesizeAndPlay(text string) error
}

// Dispatcher fans advisories out to the speaker and an optional observer.
type Dispatcher struct {
	speaker Speaker
	notify  func(advisor.Advisory)
	wg      sync.WaitGroup
}

// NewDispatcher creates a dispatcher on the given speaker.
func NewDispatcher(speaker Speaker) *Dispatcher {
	return &Dispatcher{speaker: speaker}
}

// SetNotify registers a callback invoked synchronously for every dispatched
// advisory. Used to mirror advisories onto the websocket feed.
func (d *Dispatcher) SetNotify(fn func(advisor.Advisory)) {
	d.notify = fn
}

// Dispatch voices each advisory on its own goroutine. Synthesis failures
// are logged and dropped.
func (d *Dispatcher) Dispatch(advisories []advisor.Advisory) {
	for _, adv := range advisories {
		log.Printf("[Coach] (%s) %s", adv.Category, adv.Text)
		if d.notify != nil {
			d.notify(adv)
		}

		adv := adv
		d.wg.Add(1)
		go func() {
			defer d.wg.Done()
			if err := d.speaker.SynthesizeAndPlay(adv.Text); err != nil {
				log.Printf("[Speech] Failed to voice advisory: %v", err)
			}
		}()
	}
}

// Wait blocks until all in-flight speech has been handed to the speaker.
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}

// HTTPSpeaker posts text to a local TTS sidecar that synthesizes and plays
// it on the machine's speakers.
type HTTPSpeaker struct {
	endpoint string
	client   *http.Client
}

// NewHTTPSpeaker creates a speaker for the sidecar at endpoint.
func NewHTTPSpeaker(endpoint string) *HTTPSpeaker {
	return &HTTPSpeaker{
		endpoint: endpoint,
		client:   &http.Client{Timeout: 10 * time.Second},
	}
}

// SynthesizeAndPlay implements Speaker.
func (s *HTTPSpeaker) SynthesizeAndPlay(text string) error {
	body, err := json.Marshal(map[string]string{"text": text})
	if err != nil {
		return fmt.Errorf("failed to encode speech request: %w", err)
	}

	resp, err := s.client.Post(s.endpoint, "application/json", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("speech request failed: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("speech service returned status %d", resp.StatusCode)
	}
	return nil
}

// NoopSpeaker discards all text. Used when no TTS endpoint is configured.
type NoopSpeaker struct{}

// SynthesizeAndPlay implements Speaker.
func (NoopSpeaker) SynthesizeAndPlay(string) error { return nil }
