// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package classify maps an HTTP status and body to a chat Outcome.
//
// Classification is a pure function of its inputs. The status table is
// explicit (see DefaultTable) and the completion text is located with a
// configurable gjson path, so one classifier serves every provider shape:
//
//   - PathChat ("choices.0.message.content"): OpenAI-style chat completions
//   - PathGeneratedText ("0.generated_text"): HuggingFace text generation
//
// # Usage
//
//	c := classify.New(classify.Options{ResponsePath: classify.PathChat})
//	out := c.Classify(resp.StatusCode, body)
//	switch out.Kind {
//	case classify.KindSuccess:
//	    fmt.Println(out.Text)
//	case classify.KindRetryable:
//	    // schedule another attempt
//	case classify.KindFatal:
//	    return out.Err
//	}
package classify
