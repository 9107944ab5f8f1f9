package internal

import "expvar"

var (
	requestsTotal   = expvar.NewMap("pushwatch_requests_total")
	deliveriesTotal = expvar.NewMap("pushwatch_deliveries_total")
	publishErrors   = expvar.NewMap("pushwatch_publish_errors_total")
)

// IncRequest counts every request reaching the webhook endpoint, keyed by
// provider.
func IncRequest(provider string) {
	requestsTotal.Add(provider, 1)
}

// IncDelivery counts processed deliveries keyed by their result code, so the
// unauthorized/bad_payload/ignored/processed/fault split is visible at the
// metrics endpoint.
func IncDelivery(code ResultCode) {
	deliveriesTotal.Add(code.String(), 1)
}

// IncPublishError counts failed publishes keyed by driver.
func IncPublishError(driver string) {
	publishErrors.Add(driver, 1)
}
