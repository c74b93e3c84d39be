package browser

import (
	"encoding/json"
	"fmt"
)

func jsString(s string) string {
	b, _ := json.Marshal(s)
	return string(b)
}

// resolveJS evaluates to the element for loc, or null.
func resolveJS(loc Locator) string {
	return fmt.Sprintf(`(function(by, expr) {
  if (by === "xpath") {
    return document.evaluate(expr, document, null, XPathResult.FIRST_ORDERED_NODE_TYPE, null).singleNodeValue;
  }
  return document.querySelector(expr);
})(%s, %s)`, jsString(loc.By), jsString(loc.Expr))
}

func visibleJS(loc Locator) string {
	return fmt.Sprintf(`(function() {
  const el = %s;
  if (!el) return false;
  const r = el.getBoundingClientRect();
  const st = window.getComputedStyle(el);
  return el.offsetParent !== null && r.width > 0 && r.height > 0 && st.visibility !== "hidden";
})()`, resolveJS(loc))
}

func clickJS(loc Locator) string {
	return fmt.Sprintf(`(function() {
  const el = %s;
  if (!el) return false;
  el.click();
  return true;
})()`, resolveJS(loc))
}

func centerJS(loc Locator) string {
	return fmt.Sprintf(`(function() {
  const el = %s;
  if (!el) return {found: false, x: 0, y: 0};
  el.scrollIntoView({block: "center"});
  const r = el.getBoundingClientRect();
  return {found: true, x: r.left + r.width / 2, y: r.top + r.height / 2};
})()`, resolveJS(loc))
}

func scrollJS(selector string, px int) string {
	return fmt.Sprintf(`(function(sel, px) {
  const el = sel ? document.querySelector(sel) : (document.scrollingElement || document.body);
  if (!el) return false;
  if (px > 0) { el.scrollTop = el.scrollTop + px; } else { el.scrollTop = el.scrollHeight; }
  return true;
})(%s, %d)`, jsString(selector), px)
}
