// Package integration contains the Integration bounded context.
// This context manages connections to external sales channels and shipping
// aggregators, the platform identity map, and the units of reconciliation work.
//
// Key concepts:
//   - Integration: a configured connection to one external system
//   - PlatformMapping: association between a canonical entity and its external id
//   - ChannelOrder / ChannelReturn / ChannelProduct: normalized channel payloads
//   - ReconcileJob: a queued unit of reconciliation work
//
// Design Pattern: Ports & Adapters
//   - Ports (interfaces) are defined here in the domain layer
//   - Adapters (implementations) are in the infrastructure layer
package integration
