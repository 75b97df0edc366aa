// Copyright 2024 Google, LLC
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     https://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package services

const (
	// QryHistoryByUser lists the most recent history rows of one user.
	//
	// Placeholders:
	//   - `%s`: the fully qualified history table name.
	//
	// Parameters:
	//   - `@user_id`: the caller's id.
	//   - `@limit`: the maximum number of rows.
	QryHistoryByUser = "SELECT request_id, user_id, variant, kind, topic, style, record_index, title, hashtags, payload, created_at FROM `%s` WHERE user_id = @user_id ORDER BY created_at DESC, record_index ASC LIMIT @limit"
)
