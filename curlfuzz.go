// Package curlfuzz fuzzes a single HTTP endpoint described by a captured curl command.
// It sends the unmodified request a few times to fingerprint the normal response, then runs a pool of workers
// that mutate the request body and report responses that stray from that fingerprint.
// Workers run until the campaign is cancelled; there is no natural end to a campaign.
package curlfuzz
