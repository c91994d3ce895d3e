// SPDX-License-Identifier: MIT

package scenario

import (
	"fmt"
	"strings"
)

// Brands is the fixed brand list served by the gateway.
var Brands = []string{"이니스프리", "에뛰드", "라네즈", "설화수", "헤라"}

// defaultBriefs are the per-brand scenario requests used when the client
// sends no user query.
var defaultBriefs = map[string]string{
	"이니스프리": "관엽식물이 있는 화이트 + 그린 + 우드 컬러의 실내 집 배경, 지지가 침대에 앉아 침대 앞에 있는 협탁에 손을 뻗어 이니스프리의 '그린티 밀크 보습 에센스'를 손에 쥠, 화면 전환이 되고 세안 밴드를 낀 지지가 민낯 상태로 해당 제품을 바름.",
	"에뛰드":   "지지가 전신거울 앞에서 오늘 입은 옷을 체크하는 것으로 시작, 거울 앞에 다가가 에뛰드의 '포근 픽싱 틴트'를 바름, 이후 만족한 듯 웃으며 가방을 걸치고 방을 나가는 장면, 핸드백 안에 틴트를 넣음.",
	"라네즈":   "지지가 하얀 배경의 스튜디오 OR 집에서 핸드폰으로 민낯 셀카를 찍는 장면 -> 지지가 사진을 찍는 모습을 관찰자 시점에서 비춤 -> 지지가 하늘색 파자마를 입고 워터 슬리핑 마스크를 팩브러시로 바르는 모습을 정면에서 비춤.",
	"설화수":   "설화수의 프리미엄 한방 화장품을 사용하는 지지의 저녁 스킨케어 루틴. 고급스럽고 차분한 분위기로 제품의 영양감과 피부 개선 효과를 강조.",
	"헤라":    "헤라의 메이크업 제품으로 준비하는 지지의 외출 전 루틴. 세련되고 트렌디한 분위기로 제품의 발색과 지속력을 강조.",
}

const defaultBrief = "자연스러운 일상 속에서 화장품 제품을 사용하는 지지의 모습. 친근하고 편안한 분위기로 제품의 실용성과 효과를 강조."

// BriefFor returns the scenario request for a brand, falling back to the
// generic brief.
func BriefFor(brand, userQuery string) string {
	if strings.TrimSpace(userQuery) != "" {
		return userQuery
	}
	if b, ok := defaultBriefs[brand]; ok {
		return b
	}
	return defaultBrief
}

// scenarioSystemPrompt drives the scenario synthesis stage.
const scenarioSystemPrompt = `당신은 가상 인플루언서 지지(Gigi)의 화장품 광고 영상 시나리오를 작성하는 크리에이티브 디렉터입니다.

**주인공 정보**
- 이름: 지지 (Gigi)
- 성별: 여성
- 설명: 20대 한국 여성 가상 인플루언서, 자연스러운 아름다움, 캐주얼한 라이프스타일

**CRITICAL - 솔로 영상 규칙 (절대 준수)**
- 이것은 지지 혼자만 등장하는 솔로 모노로그 영상입니다
- 지지(여성)만이 모든 장면에 등장해야 합니다
- 절대로 다른 사람이 나오면 안 됩니다 - 가족, 연인, 친구, 낯선 사람, 배경 엑스트라 모두 금지
- 다른 사람에 대한 언급도 절대 금지 - 엄마, 남자친구, 친구 등

**시나리오 작성 규칙**
결과물은 6~7문장으로 구성합니다.
반드시 브랜드 이름과 제품명을 자연스럽게 포함합니다.
공간(배경), 지지의 행동, 화면 전환, 제품 사용 장면이 순차적으로 드러나야 합니다.
광고 톤은 감성적이고 깨끗하며 라이프스타일 중심으로 작성합니다.
불필요한 설명이나 메타 발언 없이 시나리오 문장만 출력합니다.

**포함해야 할 요소**
- 실내/야외 배경 묘사
- 지지의 동작 및 표정 (혼자만 등장)
- 화장품 제품을 집어 드는 장면
- 제품 사용(바르는 장면, 사용 후 느낌 등)
- 화면 전환 또는 컷 변화
- 브랜드 이미지가 느껴지는 마무리

**사용자 요청사항**
%s`

func scenarioPrompt(brand, userQuery string) string {
	return fmt.Sprintf(scenarioSystemPrompt, BriefFor(brand, userQuery)) + "\n\n브랜드: " + brand
}

// shotSystemPrompt drives the per-shot prompt synthesis stage: dialogue,
// T2I prompt, edit prompt and ambient sounds as one JSON object.
const shotSystemPrompt = `You are an expert at converting Korean advertising scenario descriptions into English image generation prompts and natural dialogue.

**Your Task**:
Convert Korean scene descriptions into:
1. T2I (Text-to-Image) generation prompts
2. Image Edit instructions
3. Natural dialogue for Gigi (Korean)

**Character Information**:
- Name: Gigi (지지)
- Gender: Female (ALWAYS use female pronouns - she/her, 그녀)
- Description: Young Korean female influencer, natural beauty, casual lifestyle aesthetic, in her 20s
- Speaking style: Natural everyday Korean, not overly promotional

**CRITICAL - Main Character Rule (SOLO MONOLOGUE VIDEO)**:
- This is a SOLO MONOLOGUE video - only Gigi speaking to camera/audience
- Gigi (FEMALE) MUST be the ONLY person appearing in ALL scenes
- ABSOLUTELY NO other people - no family, lovers, friends, strangers, background extras
- NEVER mention other people in dialogue

**Output Format** (JSON):
{
  "dialogue": "지지의 자연스러운 발화 내용 (한국어, 1-2문장) - 발화가 필요없으면 빈 문자열",
  "t2i_prompt": {
    "background": "detailed environment description in English",
    "character_pose_and_gaze": "Gigi's pose, position, and gaze direction in English",
    "product": "product description in English",
    "camera_angle": "camera angle and composition in English"
  },
  "image_edit_prompt": {
    "pose_change": "instruction to change pose in English",
    "gaze_change": "instruction to change gaze in English",
    "expression": "facial expression instruction in English",
    "additional_edits": "other editing instructions in English"
  },
  "background_sounds_prompt": "ambient and action sounds in English - e.g., 'birds chirping, window opening sound'"
}

**Dialogue Rules (CRITICAL)**:
- Dialogue MUST be in KOREAN when present; empty string only for rare purely visual shots
- MAXIMUM 1-2 sentences - keep it SHORT (10-30 Korean characters)
- Dialogue MUST directly relate to what's happening in THIS SPECIFIC SCENE
- WORD VARIETY: avoid repeating words/expressions from previous dialogues
  * If previous scene used "좋네요", use "괜찮은데요", "마음에 들어요", "기분 좋아요"
  * If previous scene used "진짜", use "정말", "완전", "너무" or skip it
- Must sound SPONTANEOUS - natural in-the-moment feelings/reactions, NOT narrating
- Use friendly 해요체 tone - NOT formal 합니다체, and NOT overly casual 반말
- NEVER use elongated hesitations: "으...", "음...", "아..."
- FORBIDDEN: vlog openings ("오늘은 ~를 보여드릴게요"), step-by-step ("먼저 ~해요"),
  transition narration ("이제 ~로 넘어갈게요"), teaching ("~하면 좋아요")

**Background Sounds Rules**:
- MUST be written in ENGLISH, NOT Korean
- Sounds must be SPECIFIC to the action in the scene, e.g. "water running, splashing sounds"
- Can be empty string if no sound fits

**Prompt Rules**:
- All image prompts must be in English, specific and descriptive
- Include lighting, mood, and atmosphere
- Maintain character consistency (always "Gigi")
- Keep brand names in original form

Now convert the following Korean scene description to English prompts:`

// shotPrompt assembles the per-shot instruction with the recent-context
// window: the previous two (scene, dialogue) pairs.
func shotPrompt(scene, brand string, context []contextEntry) string {
	var b strings.Builder
	b.WriteString(shotSystemPrompt)
	b.WriteString("\n")
	start := 0
	if len(context) > 2 {
		start = len(context) - 2
	}
	for _, ctx := range context[start:] {
		if ctx.Dialogue != "" {
			fmt.Fprintf(&b, "Scene: %q → Dialogue: %q\n", ctx.Scene, ctx.Dialogue)
		} else {
			fmt.Fprintf(&b, "Scene: %q → (no dialogue)\n", ctx.Scene)
		}
	}
	fmt.Fprintf(&b, "\nCurrent Scene: %s", scene)
	if brand != "" {
		fmt.Fprintf(&b, "\nBrand: %s", brand)
	}
	return b.String()
}

// dialogueSystemPrompt drives one-off dialogue regeneration.
const dialogueSystemPrompt = `You are an expert at creating natural Korean dialogue for virtual influencer Gigi.

**Your Task**:
Generate ONLY natural Korean dialogue for a specific scene in Gigi's video.

**CRITICAL Rules**:
- This is a SOLO MONOLOGUE - Gigi speaks alone about her own experience
- NEVER mention other people: No "엄마", "가족", "남자친구", "친구", etc.
- Dialogue MUST directly relate to THIS SPECIFIC SCENE only
- MAXIMUM 1-2 sentences - keep it SHORT (10-30 Korean characters)
- Use friendly 해요체 tone
- Sound SPONTANEOUS - natural in-the-moment feelings/reactions

**FORBIDDEN PATTERNS**:
- NO vlog-style: "오늘은 ~를 보여드릴게요", "먼저 ~해요", "이제 ~로 넘어갈게요"
- NO teaching: "~하면 좋아요", "~하는 게 중요해요"
- NO elongated hesitations: "으...", "음...", "아..."

**Word Variety** (CRITICAL):
- Review previous dialogues and use DIFFERENT words/expressions

**Output Format**:
Return ONLY the Korean dialogue text (no JSON, no quotes, just the raw text).
If no dialogue is appropriate, return empty string.

Now generate dialogue for the following:`

func dialoguePrompt(scene string, previousDialogues []string) string {
	var b strings.Builder
	b.WriteString(dialogueSystemPrompt)
	b.WriteString("\n")
	start := 0
	if len(previousDialogues) > 3 {
		start = len(previousDialogues) - 3
	}
	for i, d := range previousDialogues[start:] {
		if strings.TrimSpace(d) != "" {
			fmt.Fprintf(&b, "Previous dialogue %d: %q\n", i+1, d)
		}
	}
	fmt.Fprintf(&b, "\nCurrent Scene: %s", scene)
	return b.String()
}

// defaultShotPrompts is the fallback when the LLM returns nothing
// parseable for a shot. The stream continues with it.
func defaultShotPrompts() shotPrompts {
	return shotPrompts{
		Dialogue: "",
		T2IPrompt: T2IPrompt{
			Background:           "a modern minimalist indoor space with natural lighting",
			CharacterPoseAndGaze: "young Korean woman Gigi standing naturally, looking at camera",
			Product:              "beauty product in hand",
			CameraAngle:          "medium shot, eye-level perspective",
		},
		ImageEditPrompt: ImageEditPrompt{
			PoseChange:      "maintain natural standing pose",
			GazeChange:      "look at the product",
			Expression:      "gentle smile, natural expression",
			AdditionalEdits: "enhance natural lighting",
		},
		BackgroundSounds: "",
	}
}
