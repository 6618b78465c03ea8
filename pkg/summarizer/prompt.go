package summarizer

import (
	"fmt"
	"strings"

	"github.com/reveriehq/reverie/pkg/model"
)

// promptBuilder accumulates the dialogue slice text.
type promptBuilder struct {
	sb strings.Builder
}

func (b *promptBuilder) dialogueLine(floor int, speaker string, isUser bool, text string) {
	role := "AI"
	if isUser {
		role = "用户"
	}
	if speaker != "" {
		role = speaker
	}
	fmt.Fprintf(&b.sb, "[#%d][%s] %s\n", floor, role, text)
}

func (b *promptBuilder) String() string {
	return b.sb.String()
}

// buildPrompt renders the summarization prompt: existing state, current
// facts, the new dialogue slice and the output contract.
func buildPrompt(state model.SummaryState, facts []model.Fact, dialogue string, startFloor, endFloor, nextEventID int) string {
	var sb strings.Builder

	sb.WriteString("你是一个对话记忆整理器。阅读新增对话,输出一个 JSON 增量,")
	sb.WriteString("包含新事件、事实更新、情节线更新、新角色和关键词。\n\n")

	sb.WriteString("## 已有事件\n")
	if len(state.Events) == 0 {
		sb.WriteString("(无)\n")
	}
	for _, evt := range state.Events {
		fmt.Fprintf(&sb, "- %s [%s/%s] %s: %s\n", evt.ID, evt.Type, evt.Weight, evt.Title, evt.Summary)
	}

	if len(state.Characters) > 0 {
		sb.WriteString("\n## 已知角色\n")
		sb.WriteString(strings.Join(state.Characters, "、"))
		sb.WriteString("\n")
	}

	if len(state.Arcs) > 0 {
		sb.WriteString("\n## 情节线\n")
		for _, arc := range state.Arcs {
			fmt.Fprintf(&sb, "- %s (进度 %.2f): %s\n", arc.Name, arc.Progress, arc.Trajectory)
		}
	}

	sb.WriteString("\n## 当前事实\n")
	if len(facts) == 0 {
		sb.WriteString("(无)\n")
	}
	for _, fact := range facts {
		if fact.Trend != "" {
			fmt.Fprintf(&sb, "- %s | %s | %s (倾向: %s)\n", fact.S, fact.P, fact.O, fact.Trend)
		} else {
			fmt.Fprintf(&sb, "- %s | %s | %s\n", fact.S, fact.P, fact.O)
		}
	}

	fmt.Fprintf(&sb, "\n## 新增对话 (第 %d 至 %d 楼)\n", startFloor, endFloor)
	sb.WriteString(dialogue)

	sb.WriteString("\n## 输出要求\n")
	fmt.Fprintf(&sb, "只输出一个 JSON 对象,键为 events、factUpdates、arcUpdates、newCharacters、keywords。\n")
	fmt.Fprintf(&sb, "新事件 id 从 evt-%d 开始顺序编号;summary 末尾必须带楼层范围标记,如 \"(#%d-%d)\"。\n", nextEventID, startFloor, endFloor)
	sb.WriteString("type 取值: 相遇、冲突、揭示、抉择、羁绊、转变、收束、日常。\n")
	sb.WriteString("weight 取值: 核心、主线、转折、点睛、氛围。\n")
	sb.WriteString("causedBy 最多引用两个已存在或本批次的事件 id。\n")
	sb.WriteString("关系类事实的 p 使用 \"toward-对方\" 形式,trend 取值: 破裂、厌恶、反感、陌生、投缘、亲密、交融。\n")
	sb.WriteString("撤销一条事实时输出 {\"s\":..., \"p\":..., \"retracted\":true}。\n")

	return sb.String()
}
