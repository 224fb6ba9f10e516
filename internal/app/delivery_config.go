package app

import "github.com/pathxpert/server/internal/delivery"

// SMSGatewaySettings converts SMSConfig to the delivery package representation.
func (c SMSConfig) SMSGatewaySettings() delivery.SMSSettings {
	return delivery.SMSSettings{
		Enabled:    c.Enabled,
		GatewayURL: c.GatewayURL,
		APIKey:     c.APIKey,
		From:       c.From,
		Timeout:    c.Timeout,
	}
}
