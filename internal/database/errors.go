// Copyright 2025 Microsoft Corporation
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package database

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
)

// substatusHeader is the Cosmos DB response header carrying the
// finer-grained sub-status code the spec's retry table keys off of.
const substatusHeader = "x-ms-substatus"

// isResponseError reports whether err is an azcore.ResponseError with the
// given HTTP status code.
func isResponseError(err error, statusCode int) bool {
	if err == nil {
		return false
	}
	var responseError *azcore.ResponseError
	return errors.As(err, &responseError) && responseError.StatusCode == statusCode
}

// isNotFound reports whether err is a 404 from the store: normal on read
// and on release per §7 kind 2, never a failure.
func isNotFound(err error) bool {
	return isResponseError(err, http.StatusNotFound)
}

// isConflict reports whether err is a 409 from the store, e.g. the
// Phase-1 optimistic insert losing a primary-key race.
func isConflict(err error) bool {
	return isResponseError(err, http.StatusConflict)
}

// isPreconditionFailed reports whether err is a 412, i.e. an ETag
// mismatch on a conditional write.
func isPreconditionFailed(err error) bool {
	return isResponseError(err, http.StatusPreconditionFailed)
}

// subStatus extracts the x-ms-substatus header from a ResponseError, if
// present.
func subStatus(err error) (int, bool) {
	var responseError *azcore.ResponseError
	if !errors.As(err, &responseError) || responseError.RawResponse == nil {
		return 0, false
	}
	raw := responseError.RawResponse.Header.Get(substatusHeader)
	if raw == "" {
		return 0, false
	}
	n, parseErr := strconv.Atoi(raw)
	if parseErr != nil {
		return 0, false
	}
	return n, true
}

// isRetryableConflict reports whether err matches one of the Phase-2
// retryable statuses from §4.3:
//   - HTTP 400 with sub-status 409 ("Conflicting request")
//   - HTTP 449 with sub-status 0 ("Retry to avoid conflicts")
//   - a plain HTTP 409 (primary-key race on the Phase-2 create)
func isRetryableConflict(err error) bool {
	if isConflict(err) {
		return true
	}

	var responseError *azcore.ResponseError
	if !errors.As(err, &responseError) {
		return false
	}

	sub, ok := subStatus(err)
	if !ok {
		return false
	}

	switch responseError.StatusCode {
	case http.StatusBadRequest:
		return sub == 409
	case 449:
		return sub == 0
	default:
		return false
	}
}
