// Package feed implements the market websocket connections.
//
//   - One Connection per tracked asset, so a reconnect storm or a bad frame
//     on one asset never stalls another
//   - Subscribe is replayed on every (re)connect
//   - Reconnects forever with capped exponential backoff
//   - Manager enriches every message with the asset id and label
package feed
