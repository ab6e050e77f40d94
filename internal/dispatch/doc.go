// Package dispatch fans a submitted form response out to the form's active
// webhook integrations. Each integration gets its own signed delivery with
// an independent timeout, a durable delivery-log row, and an integration
// health update; one endpoint failing or hanging never blocks the others.
package dispatch
