// Command pipelink runs the pipelink service and talks to it.
//
// `pipelink serve` hosts the control and SysLog channels in the foreground;
// `start`, `stop` and `restart` manage a background instance. Most other
// commands connect to a running service over its control channel, issue Get
// or Set requests against the service models, and render the replies as
// tables or JSON. `config` and `logs --file` work without a service.
package main
