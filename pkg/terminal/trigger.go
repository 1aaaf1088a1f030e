// Package terminal decides when terminal context is worth attaching to a
// question, captures that context, and describes the user's shell.
package terminal

import "strings"

// Keyword sets are matched case-insensitively as substrings.
var (
	errorKeywords = []string{
		"error", "exception", "failed", "failure", "traceback", "panic", "stack trace",
		"报错", "错误", "异常", "失败", "出错",
	}
	targetKeywords = []string{
		"output", "log", "content", "result", "message",
		"输出", "日志", "内容", "结果", "信息",
	}
	positionKeywords = []string{
		"above", "previous", "recent", "last", "earlier", "just now",
		"上面", "刚才", "之前", "最近", "上一个", "前面",
	}
	actionKeywords = []string{
		"analyze", "analyse", "explain", "fix", "debug", "why", "solve",
		"分析", "解释", "修复", "为什么", "解决", "看看",
	}
	strongTriggers = []string{
		"read terminal", "output above", "terminal output", "check terminal", "see terminal",
		"读取终端", "终端输出", "看终端", "上面的输出", "终端内容",
	}
)

func containsAny(text string, keywords []string) bool {
	for _, kw := range keywords {
		if strings.Contains(text, kw) {
			return true
		}
	}
	return false
}

// ShouldCapture reports whether question refers to something the user just
// saw in their terminal. Rules are checked in order:
//  1. an error word together with an action or position word
//  2. a position word together with a target word
//  3. any strong trigger phrase
func ShouldCapture(question string) bool {
	text := strings.ToLower(question)

	hasError := containsAny(text, errorKeywords)
	hasPosition := containsAny(text, positionKeywords)

	if hasError && (hasPosition || containsAny(text, actionKeywords)) {
		return true
	}
	if hasPosition && containsAny(text, targetKeywords) {
		return true
	}
	return containsAny(text, strongTriggers)
}
