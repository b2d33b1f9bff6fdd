/**
 * Licensed to the Apache Software Foundation (ASF) under one
 * or more contributor license agreements.  See the NOTICE file
 * distributed with this work for additional information
 * regarding copyright ownership.  The ASF licenses this file
 * to you under the Apache License, Version 2.0 (the
 * "License"); you may not use this file except in compliance
 * with the License.  You may obtain a copy of the License at
 *
 *  http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing,
 * software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY
 * KIND, either express or implied.  See the License for the
 * specific language governing permissions and limitations
 * under the License.
 */

package gsutil

import (
	"fmt"

	"github.com/pkg/errors"

	"mynewt.apache.org/gattmgr/gattsrv/bledefs"
)

// Carries the ATT status a request should be answered with.
type AttError struct {
	Text   string
	Status bledefs.BleAttStatus
}

func NewAttError(status bledefs.BleAttStatus, text string) *AttError {
	return &AttError{
		Status: status,
		Text:   text,
	}
}

func FmtAttError(status bledefs.BleAttStatus, format string,
	args ...interface{}) *AttError {

	return NewAttError(status, fmt.Sprintf(format, args...))
}

func (e *AttError) Error() string {
	return fmt.Sprintf("%s: %s", e.Status.String(), e.Text)
}

func IsAtt(err error) bool {
	_, ok := errors.Cause(err).(*AttError)
	return ok
}

// ToAttStatus maps an error to the ATT status it should be reported with.
// Errors that do not carry a status become "unlikely error".
func ToAttStatus(err error) bledefs.BleAttStatus {
	if err == nil {
		return bledefs.BLE_ATT_ERR_NONE
	}

	switch e := errors.Cause(err).(type) {
	case *AttError:
		return e.Status
	case *NotFoundError:
		return bledefs.BLE_ATT_ERR_INVALID_HANDLE
	default:
		return bledefs.BLE_ATT_ERR_UNLIKELY
	}
}

// Attribute or service lookup miss.
type NotFoundError struct {
	Text string
}

func NewNotFoundError(text string) *NotFoundError {
	return &NotFoundError{text}
}

func FmtNotFoundError(format string, args ...interface{}) *NotFoundError {
	return NewNotFoundError(fmt.Sprintf(format, args...))
}

func (e *NotFoundError) Error() string {
	return e.Text
}

func IsNotFound(err error) bool {
	_, ok := errors.Cause(err).(*NotFoundError)
	return ok
}

// Operation on a torn-down queue, directory or server.
type ClosedError struct {
	Text string
}

func NewClosedError(text string) *ClosedError {
	return &ClosedError{text}
}

func (e *ClosedError) Error() string {
	return e.Text
}

func IsClosed(err error) bool {
	_, ok := errors.Cause(err).(*ClosedError)
	return ok
}

// Represents a low-level transport error.
type XportError struct {
	Text string
}

func NewXportError(text string) *XportError {
	return &XportError{text}
}

func FmtXportError(format string, args ...interface{}) *XportError {
	return NewXportError(fmt.Sprintf(format, args...))
}

func (e *XportError) Error() string {
	return e.Text
}

func IsXport(err error) bool {
	if err == nil {
		return false
	}

	_, ok := errors.Cause(err).(*XportError)
	return ok
}

// Request sent, but no response received.
type RspTimeoutError struct {
	Text string
}

func NewRspTimeoutError(text string) *RspTimeoutError {
	return &RspTimeoutError{
		Text: text,
	}
}

func FmtRspTimeoutError(format string, args ...interface{}) *RspTimeoutError {
	return NewRspTimeoutError(fmt.Sprintf(format, args...))
}

func (e *RspTimeoutError) Error() string {
	return e.Text
}

func IsRspTimeout(err error) bool {
	_, ok := errors.Cause(err).(*RspTimeoutError)
	return ok
}
