// Package events defines the closed catalog of analytics events emitted by
// platform services and the envelope used to deliver them.
//
// Every event is a plain struct implementing Event. The catalog is sealed:
// only types declared in this package satisfy the interface, so type switches
// over Event can be exhaustive. On the wire an event is a JSON object carrying
// its fields next to a "type" discriminant in snake_case form.
package events
