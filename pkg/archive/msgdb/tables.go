package msgdb

// basicTable maps codes below 0x800 to characters. A NUL marks a code with
// no glyph; only the first occurrence of a character is used for encoding.
var basicTable = []rune(
	" .\u2bc8「」()｢｣“”\u2bc6012345" +
	"6789:、。”!? ABCDEFG" +
	"HIJKLMNOPQRSTUVWXY" +
	"Z[/]'ー\u00b7abcdefghijk" +
	"lmnopqrstuvwxyzあいう" +
	"えおかきくけこさしすせそたちつてとな" +
	"にぬねのはひふへほまみむめもやゆよら" +
	"りるれろわをんがぎぐげござじずぜぞだ" +
	"ぢづでどばびぶべぼぱぴぷぺぽぁぃぅぇ" +
	"ぉゃゅょっアイウエオカキクケコサシス" +
	"セソタチツテトナニヌネノハヒフヘホマ" +
	"ミムメモヤユヨラリルレロワヲンガギグ" +
	"ゲゴザジズゼゾダヂヅデドバビブベボパ" +
	"ピプペポァィゥェォャュョッヷ\u2e3a\u200b\x00\x00" +
	"&…+-#$%=          " +
	"\x00\x00\x00\x00\x00\x00\x00\x00\u21e7\u21e9\u21e6\u21e8")

// kanjiPages maps the low bits of a 0x800 code to a character. The page in
// use depends on the stage the strings belong to; only the first page is
// known.
var kanjiPages = [][]rune{
	[]rune(
		"生命維持注射回復剤隔離病棟階地図医局" +
		"員資料両親写真実験院長画像液体火薬冷" +
		"凍室品庫発電機起動製工場双頭蛇眼球猿" +
		"狼鷲設定書換源遮断向解除開戦避使事特" +
		"何年制作月日時分足爆破血並差込口圧報" +
		"告棚引出取入手配録力違外＊点決視変更" +
		"始直座標目淮番号部屋移禁止終左右残度" +
		"用御研究武器切調戻大懐感隣映監視減逃" +
		"美女人誰側神抜版壊一倉箱具不気味意蔵" +
		"細胞氷寒早巨拘束性必要通路障療空数字" +
		"械別鉄格子廊下続思他死殺居前割化物警" +
		"備念捕査助先行私僕名今憶呼聞見家帰過" +
		"去脱君彼来話掛声殊務閉痛方法操返押線" +
		"構成絵保育世界新創造主反応描供給装置" +
		"補議怪立街灯胎児闘無傷覆落忘黒浮色路" +
		"台着端末赤中灰皿自的仕頑丈山積扉鏡吹" +
		"壁服配盤石"),
	nil,
	nil,
	nil,
}
