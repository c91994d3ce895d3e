// SPDX-License-Identifier: MIT

package scenario

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const fiveShotScenario = "관엽식물이 있는 화이트 그린 우드 컬러의 실내 집 배경에서 지지가 침대에 앉아 있음 " +
	"화면 전환이 되고 지지가 협탁에 손을 뻗어 그린티 밀크 보습 에센스를 손에 쥠 " +
	"그 다음 세안 밴드를 낀 지지가 민낯 상태로 해당 제품을 얼굴에 바름 " +
	"다음으로 지지가 거울을 보며 만족스러운 표정으로 피부를 확인함 " +
	"장면 전환 지지가 창가에 서서 밝은 햇살 속에 미소를 짓는 장면으로 마무리됨"

func TestSegmentFiveShots(t *testing.T) {
	segs := Segment(fiveShotScenario, 25, 5)
	require.Len(t, segs, 5)
	for i, s := range segs {
		assert.Equal(t, float64(i*5), s.TimeStart)
		assert.Equal(t, float64((i+1)*5), s.TimeEnd)
		assert.NotEmpty(t, s.Description)
	}
	assert.Contains(t, segs[0].Description, "침대에 앉아")
	assert.Contains(t, segs[4].Description, "마무리됨")
}

func TestSegmentShortDurationFloorsAtFour(t *testing.T) {
	// D=3, L=5: floor gives 0 target shots, the minimum of 4 applies and
	// the text is cut into equal chunks of 0.75s each.
	text := "지지가 침대에서 일어나 창문을 열었다 밝은 햇살이 방 안으로 쏟아져 들어왔다 지지가 기지개를 켜며 웃었다"
	segs := Segment(text, 3, 5)
	require.Len(t, segs, 4)
	assert.Equal(t, 0.0, segs[0].TimeStart)
	assert.Equal(t, 0.75, segs[0].TimeEnd)
	assert.Equal(t, 2.25, segs[3].TimeStart)
	assert.Equal(t, 3.0, segs[3].TimeEnd)
}

func TestSegmentTilesExactly(t *testing.T) {
	for _, duration := range []int{7, 13, 25, 30, 61} {
		segs := Segment(fiveShotScenario, duration, 5)
		require.NotEmpty(t, segs)

		assert.Equal(t, 0.0, segs[0].TimeStart)
		for i := 1; i < len(segs); i++ {
			assert.Equal(t, segs[i-1].TimeEnd, segs[i].TimeStart,
				"gap at segment %d for duration %d", i, duration)
		}
		assert.Equal(t, float64(duration), segs[len(segs)-1].TimeEnd)
	}
}

func TestSegmentMergesExcessFragments(t *testing.T) {
	// 12 marker-separated fragments against a 4-shot target get grouped.
	text := ""
	for i := 0; i < 12; i++ {
		if i > 0 {
			text += " 화면 전환이 되고 "
		}
		text += "지지가 방 안에서 제품을 사용하는 또 하나의 장면이 이어짐"
	}
	segs := Segment(text, 20, 5)
	assert.Len(t, segs, 4)
}

func TestSegmentPeriodFallback(t *testing.T) {
	// No transition markers: sentences split on periods.
	text := "지지가 침대에 앉아 제품 병을 조용히 바라보고 있음. " +
		"지지가 병을 들어 올려 라벨을 천천히 읽어보는 모습. " +
		"지지가 손바닥에 제품을 덜어내고 향을 맡아보는 장면. " +
		"지지가 얼굴에 제품을 부드럽게 펴 바르며 미소를 지음."
	segs := Segment(text, 20, 5)
	require.Len(t, segs, 4)
}

func TestSegmentEmptyInput(t *testing.T) {
	assert.Empty(t, Segment("", 10, 5))
}
