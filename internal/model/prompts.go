package model

import (
	"fmt"
	"strings"
	"time"
)

const systemPreamble = "You are an autonomous agent. You maintain your own working memory, " +
	"decide your own next steps, and report outcomes in the structured format you are asked for."

// buildActionPrompt embeds the goal, the full memory document, and the
// current time, and asks the model to assess, decide, act, and report.
func buildActionPrompt(name, goal, memory string, now time.Time) string {
	return fmt.Sprintf(`# %s - Action Cycle

## Your Identity and Goal
You are %s, an autonomous agent with the following goal:
%s

## Your Memory
%s

## Current Time
The current time is %s

## Task
Based on your memory and goal:
1. Assess your current progress
2. Decide on the next action to take
3. Execute that action
4. Report the outcome and what you learned

Reply with a line starting with "Outcome:" summarizing what you did and learned.
If you need fresh information from the web, add a line starting with "Search:"
followed by a single search query. Focus on moving closer to your goal with
each action.`,
		name, name, goal, strings.TrimSpace(memory), now.Format("2006-01-02 15:04:05"))
}

// buildReflectionPrompt asks for a condensed strategic synthesis of recent
// progress, suitable for folding into the Insights section.
func buildReflectionPrompt(name, goal, memory string) string {
	return fmt.Sprintf(`# %s - Reflection Session

## Your Identity and Goal
You are %s, an autonomous agent with the following goal:
%s

## Your Current Memory
%s

## Reflection Task
Perform a thorough reflection on your progress toward your goal. This is a
higher-level, more strategic assessment than your regular action cycles.

Cover:
1. Progress assessment: what have you accomplished, where are you falling short?
2. Strategy evaluation: is your current approach working, what should change?
3. Insights and patterns: what have you learned that was not obvious before?
4. Obstacles and possible solutions.
5. Focus for the next phase of work.

Be honest, critical, and constructive. Keep it condensed: this synthesis
replaces the raw detail it summarizes.`,
		name, name, goal, strings.TrimSpace(memory))
}

// trimMemory shrinks an oversized memory block to roughly maxChars by cutting
// the middle out, keeping the head (identity, summaries) and the tail (most
// recent content) intact.
func trimMemory(memory string, maxChars int) string {
	if len(memory) <= maxChars || maxChars < 64 {
		return memory
	}
	const marker = "\n\n[...memory trimmed...]\n\n"
	keep := (maxChars - len(marker)) / 2
	return memory[:keep] + marker + memory[len(memory)-keep:]
}
