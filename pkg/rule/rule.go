// Copyright 2026 The Chatbroker Authors
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

// Package rule provides the RuleResponder seam: a keyword-matching
// canned-reply responder. The real policy logic (topic/keyword
// matching rules) is treated as an external collaborator here; only
// the interface point the coordinator calls through, plus a minimal
// concrete implementation, live in this package.
package rule

import "strings"

// Responder returns a canned Chinese answer for a Chinese question, or
// empty when nothing matches.
type Responder interface {
	Respond(chineseQuestion string) string
}

// keywordResponder is a direct, small-scale port of the original
// keyword-matching bot (withdrawal complaints, greetings, a generic
// "please elaborate" prompt) adapted to a Chinese-question/
// Chinese-answer contract, rather than the original's
// bilingual-keyword/French-answer one.
type keywordResponder struct{}

// New returns the default keyword-matching Responder.
func New() Responder {
	return keywordResponder{}
}

var withdrawKeywords = []string{"提现", "支付", "取款", "转账", "到账"}

func (keywordResponder) Respond(chineseQuestion string) string {
	q := strings.ToLower(chineseQuestion)

	for _, kw := range withdrawKeywords {
		if strings.Contains(q, kw) {
			return "由于支付渠道不稳定，请您耐心等待。"
		}
	}
	if strings.Contains(q, "你好") || strings.Contains(q, "您好") {
		return "您好，欢迎咨询，请问有什么可以帮您？"
	}
	if strings.Contains(q, "*") {
		return "请详细描述您遇到的问题。"
	}
	return ""
}
