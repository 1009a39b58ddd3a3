package billing

import (
	"encoding/json"
	"net/url"
	"path"
	"strings"
)

// IDSource tells where a webhook's payment id was found.
type IDSource int

const (
	IDSourceAbsent IDSource = iota
	IDSourceBody
	IDSourceQuery
)

func (s IDSource) String() string {
	switch s {
	case IDSourceBody:
		return "body"
	case IDSourceQuery:
		return "query"
	default:
		return "absent"
	}
}

// EventRef is the payment a webhook delivery refers to.
type EventRef struct {
	Source    IDSource
	PaymentID string
	Topic     string
	Action    string
}

const topicPayment = "payment"

type webhookBody struct {
	Type     string `json:"type"`
	Topic    string `json:"topic"`
	Action   string `json:"action"`
	Resource string `json:"resource"`
	Data     struct {
		ID flexID `json:"id"`
	} `json:"data"`
}

// ExtractPaymentRef resolves the payment id from a delivery. Modern webhooks
// carry {"type":"payment","data":{"id":...}} in the body, legacy IPN carries a
// resource URL or ?topic=payment&id=...; some deliveries only use the query.
// Deliveries for other topics resolve to IDSourceAbsent.
func ExtractPaymentRef(ev RawEvent) EventRef {
	var body webhookBody
	bodyOK := len(ev.Body) > 0 && json.Unmarshal(ev.Body, &body) == nil

	if bodyOK {
		topic := strings.ToLower(strings.TrimSpace(firstNonEmpty(body.Type, body.Topic)))
		if topic == "" && strings.HasPrefix(body.Action, topicPayment+".") {
			topic = topicPayment
		}
		if topic != "" && topic != topicPayment {
			return EventRef{Source: IDSourceAbsent, Topic: topic, Action: body.Action}
		}
		if topic == topicPayment {
			if id := cleanID(body.Data.ID.String()); id != "" {
				return EventRef{Source: IDSourceBody, PaymentID: id, Topic: topic, Action: body.Action}
			}
			if id := idFromResource(body.Resource); id != "" {
				return EventRef{Source: IDSourceBody, PaymentID: id, Topic: topic, Action: body.Action}
			}
		}
	}

	topic := strings.ToLower(strings.TrimSpace(firstNonEmpty(ev.Query["type"], ev.Query["topic"])))
	if topic != "" && topic != topicPayment {
		return EventRef{Source: IDSourceAbsent, Topic: topic}
	}
	for _, key := range []string{"data.id", "id"} {
		if id := cleanID(ev.Query[key]); id != "" {
			return EventRef{Source: IDSourceQuery, PaymentID: id, Topic: topicPayment}
		}
	}
	return EventRef{Source: IDSourceAbsent, Topic: topic}
}

// idFromResource accepts either a bare id or a URL ending in /payments/{id}.
func idFromResource(resource string) string {
	resource = strings.TrimSpace(resource)
	if resource == "" {
		return ""
	}
	if id := cleanID(resource); id != "" {
		return id
	}
	u, err := url.Parse(resource)
	if err != nil {
		return ""
	}
	dir, last := path.Split(strings.TrimRight(u.Path, "/"))
	if !strings.HasSuffix(dir, "/payments/") {
		return ""
	}
	return cleanID(last)
}

// cleanID accepts ids made of letters, digits, '-' and '_' only.
func cleanID(s string) string {
	s = strings.TrimSpace(s)
	if s == "" || len(s) > 64 {
		return ""
	}
	for _, r := range s {
		switch {
		case r >= '0' && r <= '9', r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r == '-', r == '_':
		default:
			return ""
		}
	}
	return s
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}
