package voice

// Category 语音消息类别
type Category string

const (
	CategoryPraise        Category = "praise"        // 进入 good
	CategoryAdjustment    Category = "adjustment"    // 进入 fair（非来自 poor）
	CategoryEncouragement Category = "encouragement" // 从 poor 回到 fair
	CategoryWarning       Category = "warning"       // 进入 poor
	CategoryCritical      Category = "critical"      // 紧急覆盖
)

// Utterance 待播报的语音消息
type Utterance struct {
	Text     string   `json:"text"`
	Category Category `json:"category"`
	Voice    string   `json:"voice,omitempty"` // 语音描述符，由 TTS 服务解释
}

// 各类别的消息文案（轮流选取）
var messageVariants = map[Category][]string{
	CategoryPraise: {
		"Great posture! Keep it up.",
		"Excellent alignment, well done.",
		"Your posture looks great right now.",
	},
	CategoryAdjustment: {
		"Your posture needs a small adjustment.",
		"Try straightening up a little.",
		"Check your sitting position.",
	},
	CategoryEncouragement: {
		"Better! Keep straightening up.",
		"Good improvement, almost there.",
	},
	CategoryWarning: {
		"Your posture is slipping. Please sit up straight.",
		"Time to reset your posture.",
		"You are slouching. Lift your chest and align your head.",
	},
	CategoryCritical: {
		"Please correct your posture now. Your neck is under heavy strain.",
	},
}

// pickMessage 按序号轮流选取类别内的文案
func pickMessage(category Category, seq int) Utterance {
	variants := messageVariants[category]
	text := variants[seq%len(variants)]
	return Utterance{Text: text, Category: category}
}
