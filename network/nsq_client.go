package network

import (
	"bytes"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
)

type NSQClient struct {
	URL string
}

// Formally define this so we can generate mocks for testing.
type NSQClientInterface interface {
	Enqueue(topic, objectID string) error
	EnqueueBatch(topic string, objectIDs []string) error
}

// NewNSQClient returns a new NSQ client that will connect to the NSQ
// server and the specified url. The URL is typically available through
// Config.NsqURL, and usually ends with :4151. This is the URL to which
// we post object identifiers we want checked, and from which the
// fixity workers read.
//
// Note that this client provides write access to queue, so we can
// add things. It does not provide read access. The workers do the
// reading.
func NewNSQClient(url string) *NSQClient {
	return &NSQClient{URL: strings.TrimSuffix(url, "/")}
}

// Enqueue puts one object identifier into the topic.
func (client *NSQClient) Enqueue(topic, objectID string) error {
	return client.post("pub", topic, objectID)
}

// EnqueueBatch puts many object identifiers into the topic with a
// single request. Identifiers may not contain newlines.
func (client *NSQClient) EnqueueBatch(topic string, objectIDs []string) error {
	if len(objectIDs) == 0 {
		return nil
	}
	for _, objectID := range objectIDs {
		if strings.ContainsAny(objectID, "\r\n") {
			return fmt.Errorf("object identifier %q contains a line break and cannot be batched", objectID)
		}
	}
	return client.post("mpub", topic, strings.Join(objectIDs, "\n"))
}

func (client *NSQClient) post(endpoint, topic, data string) error {
	_url := fmt.Sprintf("%s/%s?topic=%s", client.URL, endpoint, url.QueryEscape(topic))
	resp, err := http.Post(_url, "text/plain", bytes.NewBufferString(data))
	if err != nil {
		return fmt.Errorf("Nsqd returned an error when queuing data: %v", err)
	}
	if resp == nil {
		return fmt.Errorf("No response from nsqd at '%s'. Is it running?", _url)
	}

	// nsqd sends a simple OK. We have to read the response body,
	// or the connection will hang open forever.
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		bodyText := "[no response body]"
		if len(body) > 0 {
			bodyText = string(body)
		}
		return fmt.Errorf("nsqd returned status code %d when attempting to queue data. "+
			"Response body: %s", resp.StatusCode, bodyText)
	}
	return nil
}
