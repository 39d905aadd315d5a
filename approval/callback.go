package approval

import (
	"encoding/json"
	"fmt"
	"net/url"

	"github.com/slack-go/slack"
)

// Callback is a decoded button press.
type Callback struct {
	Decision    Decision
	Value       ButtonValue
	User        string
	ChannelID   string
	MessageTS   string
	Payload     []byte
	Interaction slack.InteractionCallback
}

// ParseCallback decodes a form body of the shape payload=<json> into the first
// block action and its button value.
func ParseCallback(body []byte) (*Callback, error) {
	form, err := url.ParseQuery(string(body))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	payload := form.Get("payload")
	if payload == "" {
		return nil, fmt.Errorf("%w: no payload field", ErrMalformedPayload)
	}
	return ParseInteraction([]byte(payload))
}

// ParseInteraction decodes the JSON interaction payload itself.
func ParseInteraction(payload []byte) (*Callback, error) {
	var ic slack.InteractionCallback
	if err := json.Unmarshal(payload, &ic); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}

	actions := ic.ActionCallback.BlockActions
	if len(actions) == 0 || actions[0] == nil {
		return nil, fmt.Errorf("%w: no block actions", ErrMalformedPayload)
	}
	action := actions[0]

	decision, err := ParseDecision(action.ActionID)
	if err != nil {
		return nil, err
	}

	var value ButtonValue
	if err := json.Unmarshal([]byte(action.Value), &value); err != nil {
		return nil, fmt.Errorf("%w: button value: %v", ErrMalformedPayload, err)
	}
	if value.TaskToken == "" {
		return nil, fmt.Errorf("%w: button value has no task token", ErrMalformedPayload)
	}

	channelID := ic.Channel.ID
	if channelID == "" {
		channelID = ic.Container.ChannelID
	}
	messageTS := ic.Message.Timestamp
	if messageTS == "" {
		messageTS = ic.Container.MessageTs
	}
	user := ic.User.Name
	if user == "" {
		user = ic.User.ID
	}

	return &Callback{
		Decision:    decision,
		Value:       value,
		User:        user,
		ChannelID:   channelID,
		MessageTS:   messageTS,
		Payload:     payload,
		Interaction: ic,
	}, nil
}
