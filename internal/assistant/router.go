package assistant

import "strings"

// RouteType is the capability chosen to answer one query.
type RouteType string

const (
	RouteKnowledgeBase RouteType = "knowledge_base"
	RouteDatasource    RouteType = "datasource"
	RouteInterface     RouteType = "interface"
	RouteMixed         RouteType = "mixed"
)

// Capabilities is the snapshot of enabled capabilities for one assistant.
type Capabilities struct {
	KnowledgeBase bool
	Datasource    bool
	Interface     bool
}

// Service describes one capability instance (a knowledge collection, a
// data source, a callable interface) available to the assistant.
type Service struct {
	Type        RouteType
	ID          string
	Name        string
	Description string
}

// RouteDecision is the router's verdict. An ambiguous query is a valid
// outcome (mixed, confidence 0.5), not an error.
type RouteDecision struct {
	Type       RouteType
	Confidence float64
	Services   []Service
	Reason     string
}

// Classifier decides which capability answers a query. It must be a pure
// function of the query and the capability/service snapshot, so it can
// be swapped for an embedding- or model-based classifier later.
type Classifier interface {
	Route(query string, caps Capabilities, services []Service) RouteDecision
}

// Keyword tables for the three intents. Entity nouns that appear equally
// in action sentences ("delete this order") are deliberately absent from
// the data set so mutation verbs dominate them.
var (
	knowledgeKeywords = []string{
		"什么是", "介绍", "解释", "说明", "概念", "定义",
		"怎么样", "如何", "为什么", "原理", "背景",
		"what is", "explain", "describe", "how does", "why",
	}

	dataKeywords = []string{
		"查询", "统计", "数量", "多少", "几个", "列表",
		"数据", "条目", "详情", "最新", "最近", "历史",
		"时间", "日期", "报表",
		"how many", "list", "count", "statistics",
	}

	actionKeywords = []string{
		"调用", "执行", "运行", "操作",
		"创建", "新建", "添加", "插入",
		"修改", "更新", "编辑",
		"删除", "移除", "清除",
		"发送", "提交", "上传",
		"create", "update", "delete", "execute", "submit",
	}
)

const (
	// lowConfidence is the floor below which intent is ambiguous.
	lowConfidence = 0.3

	// matchNorm converts a raw match count to a score: one unambiguous
	// keyword clears lowConfidence, three saturate the score.
	matchNorm = 3.0
)

// KeywordRouter is the crude bag-of-keywords classifier. Precision is
// not the point; it is cheap, explainable and replaceable.
type KeywordRouter struct {
	// AutoRoute disabled means every query fans out to all enabled
	// services.
	AutoRoute bool
}

func NewKeywordRouter(autoRoute bool) *KeywordRouter {
	return &KeywordRouter{AutoRoute: autoRoute}
}

func (r *KeywordRouter) Route(query string, caps Capabilities, services []Service) RouteDecision {
	if !r.AutoRoute {
		return RouteDecision{
			Type:       RouteMixed,
			Confidence: 1.0,
			Services:   enabledServices(caps, services),
			Reason:     "auto-routing disabled, using all available services",
		}
	}

	knowledgeScore := keywordScore(query, knowledgeKeywords)
	dataScore := keywordScore(query, dataKeywords)
	actionScore := keywordScore(query, actionKeywords)

	maxScore := knowledgeScore
	if dataScore > maxScore {
		maxScore = dataScore
	}
	if actionScore > maxScore {
		maxScore = actionScore
	}

	if maxScore < lowConfidence {
		return RouteDecision{
			Type:       RouteMixed,
			Confidence: 0.5,
			Services:   enabledServices(caps, services),
			Reason:     "ambiguous intent, using all available services",
		}
	}

	// Tie-break precedence: knowledge, then data, then action.
	switch {
	case knowledgeScore == maxScore && caps.KnowledgeBase:
		return RouteDecision{
			Type:       RouteKnowledgeBase,
			Confidence: maxScore,
			Services:   servicesOf(services, RouteKnowledgeBase),
			Reason:     "informational intent detected, using knowledge retrieval",
		}
	case dataScore == maxScore && caps.Datasource:
		return RouteDecision{
			Type:       RouteDatasource,
			Confidence: maxScore,
			Services:   servicesOf(services, RouteDatasource),
			Reason:     "data lookup intent detected, using datasource query",
		}
	case actionScore == maxScore && caps.Interface:
		return RouteDecision{
			Type:       RouteInterface,
			Confidence: maxScore,
			Services:   servicesOf(services, RouteInterface),
			Reason:     "action intent detected, using interface invocation",
		}
	default:
		return RouteDecision{
			Type:       RouteMixed,
			Confidence: maxScore * 0.7,
			Services:   enabledServices(caps, services),
			Reason:     "preferred capability disabled, using remaining services",
		}
	}
}

// keywordScore counts distinct keyword hits, normalized by matchNorm and
// capped at 1.0; two or more hits in one set earn a 1.5x boost.
func keywordScore(query string, keywords []string) float64 {
	q := strings.ToLower(query)

	matches := 0
	for _, kw := range keywords {
		if strings.Contains(q, kw) {
			matches++
		}
	}

	score := float64(matches) / matchNorm
	if matches >= 2 {
		score *= 1.5
	}
	if score > 1.0 {
		score = 1.0
	}
	return score
}

func servicesOf(services []Service, t RouteType) []Service {
	var out []Service
	for _, s := range services {
		if s.Type == t {
			out = append(out, s)
		}
	}
	return out
}

func enabledServices(caps Capabilities, services []Service) []Service {
	var out []Service
	for _, s := range services {
		switch s.Type {
		case RouteKnowledgeBase:
			if caps.KnowledgeBase {
				out = append(out, s)
			}
		case RouteDatasource:
			if caps.Datasource {
				out = append(out, s)
			}
		case RouteInterface:
			if caps.Interface {
				out = append(out, s)
			}
		}
	}
	return out
}
