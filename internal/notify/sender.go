// Package notify delivers one-time codes to mobile numbers.
package notify

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"
	"github.com/twilio/twilio-go"
	twilioApi "github.com/twilio/twilio-go/rest/api/v2010"
)

const messageTemplate = "Your verification code is %s. It expires in %d minutes."

// MessageCreator is the part of the Twilio REST API used to send SMS.
type MessageCreator interface {
	CreateMessage(params *twilioApi.CreateMessageParams) (*twilioApi.ApiV2010Message, error)
}

type TwilioSender struct {
	api           MessageCreator
	fromNumber    string
	expiryMinutes int
	logger        *logrus.Logger
}

func NewTwilioSender(accountSID, authToken, fromNumber string, expiryMinutes int, logger *logrus.Logger) *TwilioSender {
	client := twilio.NewRestClientWithParams(twilio.ClientParams{
		Username: accountSID,
		Password: authToken,
	})
	return NewTwilioSenderWithAPI(client.Api, fromNumber, expiryMinutes, logger)
}

func NewTwilioSenderWithAPI(api MessageCreator, fromNumber string, expiryMinutes int, logger *logrus.Logger) *TwilioSender {
	return &TwilioSender{
		api:           api,
		fromNumber:    fromNumber,
		expiryMinutes: expiryMinutes,
		logger:        logger,
	}
}

func (s *TwilioSender) SendOTP(ctx context.Context, mobileNumber, code string) error {
	params := &twilioApi.CreateMessageParams{}
	params.SetTo(mobileNumber)
	params.SetFrom(s.fromNumber)
	params.SetBody(fmt.Sprintf(messageTemplate, code, s.expiryMinutes))

	msg, err := s.api.CreateMessage(params)
	if err != nil {
		return fmt.Errorf("failed to send SMS: %w", err)
	}

	entry := s.logger.WithField("to", mobileNumber)
	if msg != nil && msg.Sid != nil {
		entry = entry.WithField("sid", *msg.Sid)
	}
	entry.Info("OTP SMS sent")
	return nil
}

// LogSender writes codes to the log instead of sending them. Meant for local setups without
// an SMS provider; the code itself is only logged when revealCode is set.
type LogSender struct {
	revealCode bool
	logger     *logrus.Logger
}

func NewLogSender(revealCode bool, logger *logrus.Logger) *LogSender {
	return &LogSender{
		revealCode: revealCode,
		logger:     logger,
	}
}

func (s *LogSender) SendOTP(ctx context.Context, mobileNumber, code string) error {
	fields := logrus.Fields{"to": mobileNumber}
	if s.revealCode {
		fields["otp"] = code
	}
	s.logger.WithFields(fields).Info("SMS provider not configured, OTP not delivered")
	return nil
}
