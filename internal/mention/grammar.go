package mention

import (
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"
)

// DefaultPayload 用户ID的默认形式：一个或多个 ASCII 数字
const DefaultPayload = `[0-9]+`

// Grammar 标签语法
// 严格语法 = Open + Payload + Close，只有它会被转换成 @；
// 宽松语法 = Trigger 开头（不区分大小写）、到最近的 Close 为止（没有 Close 时到下一个空白为止），用于除杂。
type Grammar struct {
	Name    string
	Open    string // 起始定界符，如 "[at:"
	Close   string // 结束定界符，如 "]"，可以为空
	Payload string // 用户ID的正则，为空时使用 DefaultPayload
	Trigger string // 疑似标签的前缀，为空时等于 Open

	strict  *regexp.Regexp
	loose   *regexp.Regexp
	trigger string // 小写的 Trigger，用于快速判断
}

// NewGrammar 编译标签语法
func NewGrammar(name, open, close, payload, trigger string) (*Grammar, error) {
	if open == "" {
		return nil, fmt.Errorf("语法 %s: 起始定界符不能为空", name)
	}
	if payload == "" {
		payload = DefaultPayload
	}
	if trigger == "" {
		trigger = open
	}
	if !strings.HasPrefix(strings.ToLower(open), strings.ToLower(trigger)) {
		return nil, fmt.Errorf("语法 %s: 触发前缀 %q 必须是起始定界符 %q 的前缀", name, trigger, open)
	}

	strictExpr := regexp.QuoteMeta(open) + "(" + payload + ")" + regexp.QuoteMeta(close)
	if close == "" {
		// 没有结束定界符时，ID 后面必须是单词边界，避免 @:123abc 只截取一半
		strictExpr += `\b`
	}
	strict, err := regexp.Compile(strictExpr)
	if err != nil {
		return nil, fmt.Errorf("语法 %s: 编译严格语法失败: %w", name, err)
	}

	looseExpr := `(?i)` + regexp.QuoteMeta(trigger)
	if r, _ := utf8.DecodeLastRuneInString(trigger); isWordRune(r) {
		looseExpr += `\b`
	}
	if close != "" {
		// 到最近的结束定界符为止；结束定界符写残了（如 " />"）时退而匹配其最后一个字符
		end := regexp.QuoteMeta(close)
		if len(close) > 1 {
			end = `(?:` + end + `|` + regexp.QuoteMeta(close[len(close)-1:]) + `)`
		}
		looseExpr += `(?:[^\n]*?` + end + `|\S*)`
	} else {
		looseExpr += `\S*`
	}
	loose, err := regexp.Compile(looseExpr)
	if err != nil {
		return nil, fmt.Errorf("语法 %s: 编译宽松语法失败: %w", name, err)
	}

	return &Grammar{
		Name:    name,
		Open:    open,
		Close:   close,
		Payload: payload,
		Trigger: trigger,
		strict:  strict,
		loose:   loose,
		trigger: strings.ToLower(trigger),
	}, nil
}

// MustGrammar 同 NewGrammar，失败时 panic，仅用于内置语法
func MustGrammar(name, open, close, payload, trigger string) *Grammar {
	g, err := NewGrammar(name, open, close, payload, trigger)
	if err != nil {
		panic(err)
	}
	return g
}

// 内置语法，每个部署只选用其中一种
var (
	Bracket = MustGrammar("bracket", "[at:", "]", "", "")
	// 兼容 <at id="1" /> 这类多了空白的写法
	XML    = MustGrammar("xml", `<at id="`, `"/>`, "", "<at").withStrict(`<at\s+id="([0-9]+)"\s*/>`)
	Tagged = MustGrammar("mention", "[mention:", "]", "", "")
	Colon  = MustGrammar("colon", "@:", "", "", "")
)

var builtin = map[string]*Grammar{
	Bracket.Name: Bracket,
	XML.Name:     XML,
	Tagged.Name:  Tagged,
	Colon.Name:   Colon,
}

// Lookup 按名称获取内置语法，名称为空时返回默认的 bracket
func Lookup(name string) (*Grammar, error) {
	if name == "" {
		return Bracket, nil
	}
	g, ok := builtin[strings.ToLower(name)]
	if !ok {
		return nil, fmt.Errorf("未知的标签语法: %s", name)
	}
	return g, nil
}

// Format 生成指向某个用户的标签
func (g *Grammar) Format(userID string) string {
	return g.Open + userID + g.Close
}

// Describe 语法说明，用于写进提示词
func (g *Grammar) Describe() string {
	if g.Close == "" {
		return fmt.Sprintf("MENTION_TAG := %q USER_ID（USER_ID 为一个或多个数字，后面紧跟空格或标点）", g.Open)
	}
	return fmt.Sprintf("MENTION_TAG := %q USER_ID %q（USER_ID 为一个或多个数字）", g.Open, g.Close)
}

// Match 严格语法的一次匹配，Start/End 为字节偏移
type Match struct {
	Start  int
	End    int
	UserID string
}

// FindAll 按从左到右的顺序找出所有不重叠的合法标签
func (g *Grammar) FindAll(text string) []Match {
	locs := g.strict.FindAllStringSubmatchIndex(text, -1)
	if len(locs) == 0 {
		return nil
	}
	matches := make([]Match, 0, len(locs))
	for _, loc := range locs {
		matches = append(matches, Match{
			Start:  loc[0],
			End:    loc[1],
			UserID: text[loc[2]:loc[3]],
		})
	}
	return matches
}

// Clean 移除所有疑似标签，返回清理后的文本和移除的数量
// 反复替换直到不再变化，保证移除后拼接出来的文本里不会出现新的标签
func (g *Grammar) Clean(text string) (string, int) {
	removed := 0
	for {
		n := len(g.loose.FindAllStringIndex(text, -1))
		if n == 0 {
			return text, removed
		}
		removed += n
		text = g.loose.ReplaceAllString(text, "")
	}
}

// FoldCase 返回严格语法也不区分大小写的副本
func (g *Grammar) FoldCase() *Grammar {
	return g.withStrict(`(?i)` + g.strict.String())
}

// withStrict 替换严格语法，第一个分组必须是用户ID
func (g *Grammar) withStrict(expr string) *Grammar {
	c := *g
	c.strict = regexp.MustCompile(expr)
	return &c
}

// MayContain 快速判断文本中是否可能含有标签
func (g *Grammar) MayContain(text string) bool {
	if strings.Contains(text, g.Trigger) {
		return true
	}
	return strings.Contains(strings.ToLower(text), g.trigger)
}

func isWordRune(r rune) bool {
	return r == '_' || (r >= '0' && r <= '9') || (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z')
}
