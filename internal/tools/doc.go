// Package tools runs host commands, such as rfcomm, on behalf of transports.
package tools
