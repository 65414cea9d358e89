// Package targeting implements the element targeting protocol between a
// rendered dashboard (inside a frame) and the host: the script every
// generated document carries, selector derivation, and decoding of the
// cross-document messages the script posts.
package targeting

import "strings"

// ScriptAttribute marks the targeting script so documents can be checked
// for it without comparing the whole block.
const ScriptAttribute = `data-agentdash-targeting="v1"`

// SelectedClass is the class the script puts on the selected element.
const SelectedClass = "agentdash-selected"

// Script is appended verbatim at the end of every generated document body.
const Script = `<script ` + ScriptAttribute + `>
(function () {
  var MARK = '` + SelectedClass + `';
  var style = document.createElement('style');
  style.textContent = '.' + MARK + '{outline:2px solid #2563eb !important;outline-offset:2px !important;cursor:pointer;}';
  (document.head || document.documentElement).appendChild(style);

  function classes(el) {
    var raw = el.getAttribute('class') || '';
    return raw.split(/\s+/).filter(function (c) { return c && c !== MARK; });
  }

  function selectorFor(el) {
    if (el.id) { return '#' + el.id; }
    var sel = el.tagName.toLowerCase();
    var stable = classes(el).filter(function (c) {
      return c.indexOf(':') === -1 && c.indexOf('hover') === -1;
    });
    if (stable.length) { sel += '.' + stable.join('.'); }
    return sel;
  }

  document.addEventListener('click', function (e) {
    var el = e.target;
    if (!el || el.nodeType !== 1 || el === document.documentElement) { return; }
    e.preventDefault();
    e.stopPropagation();
    var marked = document.querySelectorAll('.' + MARK);
    for (var i = 0; i < marked.length; i++) { marked[i].classList.remove(MARK); }
    var selector = selectorFor(el);
    var className = classes(el).join(' ');
    el.classList.add(MARK);
    window.parent.postMessage({
      type: 'element-selected',
      payload: {
        selector: selector,
        tagName: el.tagName,
        id: el.id || '',
        className: className,
        innerText: (el.innerText || el.textContent || '').substring(0, 200)
      }
    }, '*');
  }, true);
})();
</script>`

// HasScript reports whether document already carries the targeting script.
func HasScript(document string) bool {
	return strings.Contains(document, ScriptAttribute)
}

// EnsureScript returns document with the targeting script placed right
// before the last closing body tag, or appended when there is none.
func EnsureScript(document string) string {
	if HasScript(document) {
		return document
	}
	lm := Scan(document)
	at := lm.BodyEnd
	if at < 0 {
		at = lm.HTMLEnd
	}
	if at < 0 {
		return document + "\n" + Script
	}
	return document[:at] + Script + "\n" + document[at:]
}
