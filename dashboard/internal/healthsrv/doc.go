// Package healthsrv exposes the switch's reachability as a standard gRPC
// health service, so load balancers and orchestrators can probe fleetwatch
// without speaking its REST API.
//
// The service "fleetwatch.switch" is SERVING when the switch is online,
// NOT_SERVING when it is offline and UNKNOWN while connecting.
package healthsrv
