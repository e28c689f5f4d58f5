// Package gateway defines the types shared between the HTTP request gateway
// and the transports that carry request events to the asynchronous handler
// environment: route registrations, gateway configuration, the outbound
// RequestEvent record, the inbound RespondMessage record, and the Notifier
// and Responder collaborator contracts.
package gateway
