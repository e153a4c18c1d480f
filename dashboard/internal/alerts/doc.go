// Package alerts implements threshold rules over fleet metrics and webhook
// delivery for fleetwatch. Rules are evaluated after every poll; firing and
// resolving alerts are written to the activity log and delivered to Teams,
// Slack, or generic HTTP targets.
package alerts
