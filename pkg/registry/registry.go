package registry

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	"curator/pkg/contract"
	knn "curator/plugins/classifier/knn"
	lin "curator/plugins/classifier/linear"
	dauto "curator/plugins/decoder/auto"
	djsonl "curator/plugins/decoder/jsonl"
	dmd "curator/plugins/decoder/markdown"
	dpq "curator/plugins/decoder/parquet"
	dpdf "curator/plugins/decoder/pdf"
	dtxt "curator/plugins/decoder/plaintext"
	eft "curator/plugins/encoder/fasttext"
	ejsonl "curator/plugins/encoder/jsonl"
	epq "curator/plugins/encoder/parquet"
	"curator/plugins/heuristic/lexical"
	"curator/plugins/heuristic/repetition"
	rfs "curator/plugins/reader/filesystem"
	tmd "curator/plugins/transform/markdown"
	tuni "curator/plugins/transform/unicode"
	wfs "curator/plugins/writer/filesystem"
	wminio "curator/plugins/writer/minio"
	ws3 "curator/plugins/writer/s3"
)

// strictUnmarshal: 使用 DisallowUnknownFields 严格解码，拒绝未知字段。
func strictUnmarshal(raw json.RawMessage, v any) error {
	if len(raw) == 0 || bytes.Equal(bytes.TrimSpace(raw), []byte("null")) {
		// 保持零值（默认选项）
		return nil
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("options: %v: %w", err, contract.ErrConstruction)
	}
	return nil
}

// NewReader 工厂签名：接收原样 JSON Options。
type NewReader func(raw json.RawMessage) (contract.Reader, error)

// NewDecoder 工厂签名：接收原样 JSON Options。
type NewDecoder func(raw json.RawMessage) (contract.Decoder, error)

// NewEncoder 工厂签名：接收原样 JSON Options。
type NewEncoder func(raw json.RawMessage) (contract.Encoder, error)

// NewWriter 工厂签名：接收原样 JSON Options。
type NewWriter func(raw json.RawMessage) (contract.Writer, error)

// NewTransformer 工厂签名：接收原样 JSON Options。
type NewTransformer func(raw json.RawMessage) (contract.Transformer, error)

// NewHeuristic 工厂签名：params 为过滤规格中的原样参数。
type NewHeuristic func(raw json.RawMessage) (contract.ScoreFunc, error)

// NewClassifier 工厂签名：path 为模型工件路径。
type NewClassifier func(ctx context.Context, path string, raw json.RawMessage) (contract.Model, error)

// Reader 工厂注册表（显式、零反射）。
var Reader = map[string]NewReader{
	// fs: 文件系统/STDIN Reader
	"fs": func(raw json.RawMessage) (contract.Reader, error) {
		var opts rfs.Options
		if err := strictUnmarshal(raw, &opts); err != nil {
			return nil, err
		}
		return rfs.New(&opts), nil
	},
}

// Decoder 工厂注册表。
var Decoder = map[string]NewDecoder{
	"jsonl": func(raw json.RawMessage) (contract.Decoder, error) {
		var opts djsonl.Options
		if err := strictUnmarshal(raw, &opts); err != nil {
			return nil, err
		}
		return djsonl.New(&opts), nil
	},
	"text": func(raw json.RawMessage) (contract.Decoder, error) {
		var opts dtxt.Options
		if err := strictUnmarshal(raw, &opts); err != nil {
			return nil, err
		}
		v, err := dtxt.New(&opts)
		if err != nil {
			return nil, constructErr(err)
		}
		return v, nil
	},
	"markdown": func(raw json.RawMessage) (contract.Decoder, error) {
		var opts dmd.Options
		if err := strictUnmarshal(raw, &opts); err != nil {
			return nil, err
		}
		v, err := dmd.New(&opts)
		if err != nil {
			return nil, constructErr(err)
		}
		return v, nil
	},
	// pdf: 每页或每文件一条文档
	"pdf": func(raw json.RawMessage) (contract.Decoder, error) {
		var opts dpdf.Options
		if err := strictUnmarshal(raw, &opts); err != nil {
			return nil, err
		}
		return dpdf.New(&opts), nil
	},
	"parquet": func(raw json.RawMessage) (contract.Decoder, error) {
		var opts dpq.Options
		if err := strictUnmarshal(raw, &opts); err != nil {
			return nil, err
		}
		v, err := dpq.New(&opts)
		if err != nil {
			return nil, constructErr(err)
		}
		return v, nil
	},
}

func init() {
	// auto 需要引用 Decoder 自身，放在 init 中注册以避免初始化环
	Decoder["auto"] = newAutoDecoder
}

// newAutoDecoder 构造全部已注册解码器并按扩展名分派。
func newAutoDecoder(raw json.RawMessage) (contract.Decoder, error) {
	var opts dauto.Options
	if err := strictUnmarshal(raw, &opts); err != nil {
		return nil, err
	}
	for name := range opts.Options {
		if _, ok := Decoder[name]; !ok || name == "auto" {
			return nil, fmt.Errorf("auto decoder: unknown decoder %q: %w", name, contract.ErrConstruction)
		}
	}
	byName := map[string]contract.Decoder{}
	for name, f := range Decoder {
		if name == "auto" {
			continue
		}
		d, err := f(opts.Options[name])
		if err != nil {
			return nil, fmt.Errorf("auto decoder %s: %w", name, err)
		}
		byName[name] = d
	}
	v, err := dauto.New(byName, opts.Default)
	if err != nil {
		return nil, constructErr(err)
	}
	return v, nil
}

// Encoder 工厂注册表。
var Encoder = map[string]NewEncoder{
	"jsonl": func(raw json.RawMessage) (contract.Encoder, error) {
		var opts ejsonl.Options
		if err := strictUnmarshal(raw, &opts); err != nil {
			return nil, err
		}
		return ejsonl.New(&opts), nil
	},
	"parquet": func(raw json.RawMessage) (contract.Encoder, error) {
		var opts epq.Options
		if err := strictUnmarshal(raw, &opts); err != nil {
			return nil, err
		}
		v, err := epq.New(&opts)
		if err != nil {
			return nil, constructErr(err)
		}
		return v, nil
	},
	// fasttext: `__label__x text` 行格式（训练数据）
	"fasttext": func(raw json.RawMessage) (contract.Encoder, error) {
		var opts eft.Options
		if err := strictUnmarshal(raw, &opts); err != nil {
			return nil, err
		}
		return eft.New(&opts), nil
	},
}

// Writer 工厂注册表。
var Writer = map[string]NewWriter{
	// fs: 文件系统 Writer（覆盖写/原子替换可配置）
	"fs": func(raw json.RawMessage) (contract.Writer, error) {
		var opts wfs.Options
		if err := strictUnmarshal(raw, &opts); err != nil {
			return nil, err
		}
		v, err := wfs.New(&opts)
		if err != nil {
			return nil, constructErr(err)
		}
		return v, nil
	},
	"s3": func(raw json.RawMessage) (contract.Writer, error) {
		var opts ws3.Options
		if err := strictUnmarshal(raw, &opts); err != nil {
			return nil, err
		}
		v, err := ws3.New(opts)
		if err != nil {
			return nil, constructErr(err)
		}
		return v, nil
	},
	"minio": func(raw json.RawMessage) (contract.Writer, error) {
		var opts wminio.Options
		if err := strictUnmarshal(raw, &opts); err != nil {
			return nil, err
		}
		v, err := wminio.New(opts)
		if err != nil {
			return nil, constructErr(err)
		}
		return v, nil
	},
}

// Transform 工厂注册表（文档级变换）。
var Transform = map[string]NewTransformer{
	"unicode": func(raw json.RawMessage) (contract.Transformer, error) {
		var opts tuni.Options
		if err := strictUnmarshal(raw, &opts); err != nil {
			return nil, err
		}
		v, err := tuni.New(&opts)
		if err != nil {
			return nil, constructErr(err)
		}
		return v, nil
	},
	"markdown": func(raw json.RawMessage) (contract.Transformer, error) {
		var opts tmd.Options
		if err := strictUnmarshal(raw, &opts); err != nil {
			return nil, err
		}
		return tmd.New(&opts), nil
	},
}

// plain 包装无参数的打分函数；任何参数都视为未知字段。
func plain(f contract.ScoreFunc) NewHeuristic {
	return func(raw json.RawMessage) (contract.ScoreFunc, error) {
		var none struct{}
		if err := strictUnmarshal(raw, &none); err != nil {
			return nil, err
		}
		return f, nil
	}
}

func withOpts[O any](build func(O) contract.ScoreFunc) NewHeuristic {
	return func(raw json.RawMessage) (contract.ScoreFunc, error) {
		var o O
		if err := strictUnmarshal(raw, &o); err != nil {
			return nil, err
		}
		return build(o), nil
	}
}

// Heuristic 启发式打分函数注册表。
var Heuristic = map[string]NewHeuristic{
	"min_length":              withOpts(lexical.MinLength),
	"word_count":              plain(lexical.WordCount),
	"mean_word_length":        plain(lexical.MeanWordLength),
	"longest_word":            plain(lexical.LongestWord),
	"symbol_to_word_ratio":    withOpts(lexical.SymbolToWordRatio),
	"non_alpha_numeric_ratio": plain(lexical.NonAlphaNumericRatio),
	"whitespace_ratio":        plain(lexical.WhitespaceRatio),
	"url_ratio":               plain(lexical.URLRatio),
	"parentheses_ratio":       plain(lexical.ParenthesesRatio),
	"bullet_lines_ratio":      plain(lexical.BulletLinesRatio),
	"ellipsis_lines_ratio":    plain(lexical.EllipsisLinesRatio),
	"punctuation_end_ratio":   plain(lexical.PunctuationEndRatio),
	"boilerplate_count":       withOpts(lexical.BoilerplateCount),

	"repeated_lines_ratio":       plain(repetition.RepeatedLinesRatio),
	"repeated_paragraphs_ratio":  plain(repetition.RepeatedParagraphsRatio),
	"repeated_lines_char_ratio":  plain(repetition.RepeatedLinesCharRatio),
	"top_ngram_char_ratio":       withOpts(repetition.TopNgramCharRatio),
	"duplicate_ngram_char_ratio": withOpts(repetition.DuplicateNgramCharRatio),
}

// Classifier 质量分类器工厂注册表：加载失败统一包装为 ModelLoadError。
var Classifier = map[string]NewClassifier{
	"linear": func(_ context.Context, path string, raw json.RawMessage) (contract.Model, error) {
		var opts lin.Options
		if err := strictUnmarshal(raw, &opts); err != nil {
			return nil, err
		}
		m, err := lin.Load(path, opts)
		if err != nil {
			return nil, &contract.ModelLoadError{Path: path, Err: err}
		}
		return m, nil
	},
	"knn": func(ctx context.Context, path string, raw json.RawMessage) (contract.Model, error) {
		var opts knn.Options
		if err := strictUnmarshal(raw, &opts); err != nil {
			return nil, err
		}
		m, err := knn.Load(ctx, path, opts)
		if err != nil {
			return nil, &contract.ModelLoadError{Path: path, Err: err}
		}
		return m, nil
	},
}

// constructErr 把插件构造期错误归入 ErrConstruction。
func constructErr(err error) error {
	if contract.IsFatal(err) {
		return err
	}
	return fmt.Errorf("%v: %w", err, contract.ErrConstruction)
}
