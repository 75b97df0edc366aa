// Copyright 2024 Google, LLC
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     https://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package model

// StylePresets are the styles offered to users. Any free-text style is also
// accepted.
var StylePresets = []string{
	"😂 ตลก / กวนโอ๊ย", "🥊 ผัวเมียตีกัน / ปัญหาชีวิตคู่", "📈 หุ้น / การลงทุน / Crypto",
	"✈️ ท่องเที่ยว / Vlog", "👻 เล่าเรื่องผี / สยองขวัญ", "🔥 ขายของดุดัน (Hard Sale)",
	"🎓 สาระความรู้ / How-to", "✨ แรงบันดาลใจ / สู้ชีวิต", "🍲 รีวิวอาหาร / พากิน",
	"🗣️ สรุปข่าว / ดราม่าโซเชียล", "🔮 สายมู / ดูดวง / ฮวงจุ้ย", "💰 ปลดหนี้ / ออมเงิน",
	"💪 ลดความอ้วน / สุขภาพ", "💄 แต่งหน้า / แฟชั่น / ความสวย", "💔 อกหัก / เศร้า / เหงา",
	"🏠 แต่งบ้าน / รีวิวของใช้", "🚗 รีวิวรถ / ยานยนต์", "📱 ไอที / แกดเจ็ต / ทริคมือถือ",
	"🐶 สัตว์เลี้ยง / ทาสแมว", "🎮 เกมเมอร์ / สตรีมเกม", "🎬 สปอยล์หนัง / เล่าซีรีส์",
	"🕵️ คดีปริศนา / จับโกหก", "⛺ แคมป์ปิ้ง / เดินป่า", "🎱 เสี่ยงโชค / เลขเด็ด",
	"🌱 เกษตร / ปลูกผัก", "🌏 ประวัติศาสตร์ / รอบโลก", "🧘 จิตวิทยา / พัฒนาตนเอง",
	"🎤 ASMR / ผ่อนคลาย", "📚 เล่านิทาน / ตำนาน", "📢 ทางการ / ข่าวประชาสัมพันธ์",
}

// GetExampleScript returns a complete script used as the few-shot example in
// script prompts, so the model sees every field in the expected shape.
func GetExampleScript() *ScriptRecord {
	return &ScriptRecord{
		Title: "3 ทริคเก็บเงินที่คนรวยไม่เคยบอกคุณ",
		Thumbnail: BilingualText{
			EN: "Surprised young Thai office worker holding a glass jar full of coins, bold yellow background, cinematic lighting",
			TH: "พนักงานออฟฟิศหน้าตกใจถือโหลเหรียญ พื้นหลังสีเหลืองสด",
		},
		Shots: []BilingualText{
			{EN: "[0-3s] Close-up of an empty wallet opened on a desk", TH: "[0-3s] กระเป๋าสตางค์ว่างเปล่าบนโต๊ะทำงาน"},
			{EN: "[3-6s] Hand dropping coins into three labelled jars", TH: "[3-6s] มือหยอดเหรียญลงโหลสามใบที่ติดป้าย"},
			{EN: "[6-9s] Phone screen showing a savings balance going up", TH: "[6-9s] หน้าจอมือถือแสดงยอดเงินออมที่เพิ่มขึ้น"},
		},
		VoiceOver:   "เงินเดือนออกปุ๊บหมดปั๊บ? ลองแบ่งเงินเป็นสามโหล ใช้ เก็บ ลงทุน แล้วตั้งโอนอัตโนมัติ รับรองสิ้นปีมีเงินเก็บแน่นอน",
		Description: "แบ่งเงินเป็นสามส่วนและตั้งโอนอัตโนมัติทันทีที่เงินเดือนเข้า",
		Hashtags:    []string{"เก็บเงิน", "การเงิน", "มนุษย์เงินเดือน"},
	}
}

// GetExampleStoryboard returns the few-shot example for storyboard prompts.
func GetExampleStoryboard() *StoryboardRecord {
	return &StoryboardRecord{
		ConceptName: "ร้านกาแฟลับในซอยที่คนแน่นทุกเช้า ทำไมต้องมาให้ได้สักครั้ง",
		Insight:     "คนทำงานเช้ามองหากาแฟดีที่ไม่ต้องต่อคิวนาน",
		Hook:        "ถ้าคุณยังไม่เคยมาซอยนี้ เช้าพรุ่งนี้คุณพลาดแล้ว",
		Scenes: []StoryboardScene{
			{AssetType: AssetUserImage, AssetIndex: 1, VisualPromptTH: "หน้าร้านยามเช้า", VisualPromptEN: "Small coffee shop front in a Bangkok alley at sunrise", VoiceOver: "ซอยเล็กๆ ที่คนแน่นทุกเช้า"},
			{AssetType: AssetGenerated, VisualPromptTH: "บาริสต้าเทลาเต้อาร์ต", VisualPromptEN: "Barista pouring latte art, shallow depth of field, warm tones", VoiceOver: "กาแฟแก้วนี้คือเหตุผล"},
		},
		Hashtags: []string{"คาเฟ่", "กาแฟ", "ของดีบอกต่อ"},
	}
}
