// Package telephony places the summarizing phone call that closes a
// pipeline run. Call placement is best-effort: a dispatch failure is
// reported in the stage output, never as a stage error, so it cannot
// retract an already-synthesized report.
package telephony

import (
	"context"
	"encoding/xml"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/twilio/twilio-go"
	twilioapi "github.com/twilio/twilio-go/rest/api/v2010"
)

// CallPlacer is the outbound telephony boundary.
type CallPlacer interface {
	// PlaceCall dials destination and speaks message. It returns a
	// provider reference for the call.
	PlaceCall(ctx context.Context, destination, message string) (string, error)
}

// TwilioPlacer places calls through the Twilio Programmable Voice API.
type TwilioPlacer struct {
	client *twilio.RestClient
	from   string
}

// NewTwilioPlacer builds a placer with account credentials and the
// configured caller number.
func NewTwilioPlacer(accountSID, authToken, from string) *TwilioPlacer {
	client := twilio.NewRestClientWithParams(twilio.ClientParams{
		Username: accountSID,
		Password: authToken,
	})
	return &TwilioPlacer{client: client, from: from}
}

// PlaceCall dials the destination with a TwiML <Say> of the message.
// Cancelling ctx aborts an in-flight API request.
func (p *TwilioPlacer) PlaceCall(ctx context.Context, destination, message string) (string, error) {
	params := &twilioapi.CreateCallParams{}
	params.SetTo(destination)
	params.SetFrom(p.from)
	params.SetTwiml(sayTwiml(message))

	resp, err := p.client.Api.CreateCall(params)
	if err != nil {
		return "", fmt.Errorf("create call: %w", err)
	}

	sid := ""
	if resp.Sid != nil {
		sid = *resp.Sid
	}
	log.Info().Str("call_sid", sid).Msg("Outbound call placed")
	return sid, nil
}

// sayTwiml renders the spoken message as TwiML, escaping it for XML.
func sayTwiml(message string) string {
	var sb strings.Builder
	_ = xml.EscapeText(&sb, []byte(message))
	return "<Response><Say>" + sb.String() + "</Say></Response>"
}
